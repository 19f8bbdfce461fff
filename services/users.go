package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"captiongram/images"
	"captiongram/models"
	"captiongram/storage"

	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoProfilePicture   = errors.New("profile picture is required")
	ErrInvalidUserData    = errors.New("username and password are required")
)

const DefaultSessionTTL = 7 * 24 * time.Hour

// RegisterRequest - данные регистрации; Picture - байты аватара
type RegisterRequest struct {
	Username string
	Password string
	FullName string
	Bio      string
	Picture  []byte
}

// UserService - регистрация, вход и сессии пользователей
type UserService struct {
	db         *gorm.DB
	store      storage.Store
	cleanup    *CleanupQueue
	imageOpts  images.Options
	sessionTTL time.Duration
	timeout    time.Duration
}

func NewUserService(database *gorm.DB, store storage.Store, cleanup *CleanupQueue, imageOpts images.Options, sessionTTL, storageTimeout time.Duration) *UserService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if storageTimeout <= 0 {
		storageTimeout = DefaultExternalTimeout
	}
	return &UserService{
		db:         database,
		store:      store,
		cleanup:    cleanup,
		imageOpts:  imageOpts,
		sessionTTL: sessionTTL,
		timeout:    storageTimeout,
	}
}

// SessionTTL возвращает время жизни токена
func (s *UserService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Register создает пользователя с аватаром в папке profile_pictures и сразу выдает токен
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, string, error) {
	log.Printf("DEBUG: Registering user with username: %s", req.Username)
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, "", ErrInvalidUserData
	}
	if len(req.Picture) == 0 {
		return nil, "", ErrNoProfilePicture
	}

	var alreadyExists int64
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Model(&models.User{}).
		Where("username = ?", req.Username).Count(&alreadyExists).Error
	if err != nil {
		log.Printf("ERROR: Failed to check if user exists: %v", err)
		return nil, "", err
	}
	if alreadyExists > 0 {
		return nil, "", ErrUserExists
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}

	compressed, err := images.Compress(req.Picture, s.imageOpts)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	object, err := s.store.Upload(uploadCtx, compressed, storage.NewKey(".jpg"), storage.FolderProfilePictures)
	if err != nil {
		return nil, "", externalError(uploadCtx, "register", StepUploaded, ErrStorageUpload, err)
	}

	user := &models.User{
		Username:        req.Username,
		Password:        passwordHash,
		FullName:        req.FullName,
		Bio:             req.Bio,
		ProfileImageURL: object.URL,
	}

	var token string
	err = s.db.WithContext(ctx).Clauses(dbresolver.Write).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserExists
			}
			return err
		}
		token, err = s.issueToken(tx, user.ID)
		return err
	})
	if err != nil {
		log.Printf("ERROR: Failed to create user %s: %v", req.Username, err)
		s.discardPicture(ctx, *object)
		return nil, "", err
	}

	log.Printf("DEBUG: User registered with ID=%d", user.ID)
	return user, token, nil
}

// Login проверяет пароль и выдает новый токен, удаляя прежние
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrUserNotFound
	}
	if err != nil {
		return nil, "", err
	}

	ok, err := verifyPassword(user.Password, password)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrInvalidCredentials
	}

	var token string
	err = s.db.WithContext(ctx).Clauses(dbresolver.Write).Transaction(func(tx *gorm.DB) error {
		// Удаляем старые токены (если они есть)
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserTokens{}).Error; err != nil {
			return err
		}
		token, err = s.issueToken(tx, user.ID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Logout удаляет токен. Неизвестный токен не считается ошибкой
func (s *UserService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(dbresolver.Write).
		Where("token = ?", token).Delete(&models.UserTokens{}).Error
}

// UserByToken возвращает владельца действующего токена
func (s *UserService) UserByToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	var stored models.UserTokens
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Where("token = ?", token).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return s.GetUser(ctx, stored.UserID)
}

func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Clauses(dbresolver.Read).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) issueToken(tx *gorm.DB, userID int64) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)
	err := tx.Create(&models.UserTokens{
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}).Error
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *UserService) discardPicture(ctx context.Context, obj storage.Object) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.store.Delete(deleteCtx, obj); err != nil {
		if qErr := s.cleanup.Enqueue(deleteCtx, CleanupTask{Object: obj, Reason: "user registration failed"}); qErr != nil {
			log.Printf("ERROR: Orphaned profile picture %s left in storage: %v", obj.URL, qErr)
		}
	}
}

// hashPassword возвращает соль и хеш argon2id в виде "salt$hash"
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

func verifyPassword(stored, password string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return false, errors.New("invalid password format")
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false, err
	}
	expected, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, err
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}
