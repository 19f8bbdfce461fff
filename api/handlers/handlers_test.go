package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"captiongram/api/middleware"
	"captiongram/models"
	"captiongram/repository"
	"captiongram/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPosts struct {
	createErr     error
	regenerateErr error
	lastRaw       []byte
	lastOwner     int64
	lastAfter     *repository.Cursor
}

func (s *stubPosts) CreatePost(ctx context.Context, ownerID int64, raw []byte) (*models.Post, error) {
	s.lastRaw, s.lastOwner = raw, ownerID
	if len(raw) == 0 {
		return nil, &services.WorkflowError{Workflow: services.WorkflowCreatePost, Step: services.StepReceivedUpload, Kind: services.ErrNoImage}
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &models.Post{ID: "p-1", OwnerID: ownerID, ImageURL: "https://ik.example.test/posts/a.jpg", Caption: "Sunday mood ☕"}, nil
}

func (s *stubPosts) RegenerateCaption(ctx context.Context, callerID int64, postID string) (*models.Post, error) {
	if s.regenerateErr != nil {
		return nil, s.regenerateErr
	}
	return &models.Post{ID: postID, OwnerID: callerID, ImageURL: "https://ik.example.test/posts/a.jpg", Caption: "fresh take 🌿"}, nil
}

func (s *stubPosts) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	if postID != "p-1" {
		return nil, services.ErrPostNotFound
	}
	return &models.Post{ID: "p-1", OwnerID: 1, Caption: "Sunday mood ☕"}, nil
}

func (s *stubPosts) ListOwnerPosts(ctx context.Context, ownerID int64, after *repository.Cursor, limit int) ([]models.Post, error) {
	s.lastOwner, s.lastAfter = ownerID, after
	return []models.Post{{ID: "p-2", OwnerID: ownerID}, {ID: "p-1", OwnerID: ownerID}}, nil
}

type stubAccounts struct {
	registerErr error
	loginErr    error
	loggedOut   string
}

func (s *stubAccounts) Register(ctx context.Context, req services.RegisterRequest) (*models.User, string, error) {
	if s.registerErr != nil {
		return nil, "", s.registerErr
	}
	if len(req.Picture) == 0 {
		return nil, "", services.ErrNoProfilePicture
	}
	return &models.User{ID: 3, Username: req.Username, FullName: req.FullName, Password: "hash"}, "tok-3", nil
}

func (s *stubAccounts) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	if s.loginErr != nil {
		return nil, "", s.loginErr
	}
	return &models.User{ID: 3, Username: username}, "tok-3", nil
}

func (s *stubAccounts) Logout(ctx context.Context, token string) error {
	s.loggedOut = token
	return nil
}

func (s *stubAccounts) SessionTTL() time.Duration { return 7 * 24 * time.Hour }

func (s *stubAccounts) UserByToken(ctx context.Context, token string) (*models.User, error) {
	if token != "tok-3" {
		return nil, services.ErrInvalidToken
	}
	return &models.User{ID: 3, Username: "kate"}, nil
}

func setupRouter(posts *stubPosts, accounts *stubAccounts) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := middleware.AuthMiddleware(accounts)

	postHandlers := NewPostHandlers(posts, 1<<20)
	authHandlers := NewAuthHandlers(accounts, posts, false, 1<<20)

	router.POST("/auth/register", authHandlers.Register)
	router.POST("/auth/login", authHandlers.Login)
	router.POST("/auth/logout", authHandlers.Logout)
	router.GET("/auth/user", auth, authHandlers.Profile)
	router.POST("/posts/", auth, postHandlers.CreatePost)
	router.GET("/posts/:id", postHandlers.GetPost)
	router.PUT("/posts/:id/generate-caption", auth, postHandlers.GenerateCaption)
	return router
}

func multipartRequest(t *testing.T, method, url, field string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if file != nil {
		part, err := writer.CreateFormFile(field, "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, url, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCreatePostHandler(t *testing.T) {
	posts := &stubPosts{}
	router := setupRouter(posts, &stubAccounts{})

	req := multipartRequest(t, http.MethodPost, "/posts/", "post", []byte("image-bytes"), nil)
	req.Header.Set("Authorization", "Bearer tok-3")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Post created successfully", body["message"])
	post := body["post"].(map[string]interface{})
	assert.Equal(t, "p-1", post["id"])
	assert.Equal(t, "Sunday mood ☕", post["caption"])
	assert.Equal(t, float64(3), post["ownerId"])
	assert.NotEmpty(t, post["imageUrl"])
	assert.Equal(t, []byte("image-bytes"), posts.lastRaw)
	assert.Equal(t, int64(3), posts.lastOwner)
}

func TestCreatePostHandlerNoFile(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})

	req := multipartRequest(t, http.MethodPost, "/posts/", "post", nil, map[string]string{"note": "x"})
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: "tok-3"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no_image", decodeBody(t, w)["error"])
}

func TestCreatePostHandlerTooLarge(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})

	req := multipartRequest(t, http.MethodPost, "/posts/", "post", bytes.Repeat([]byte{1}, 1<<20+10), nil)
	req.Header.Set("Authorization", "Bearer tok-3")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCreatePostHandlerUnauthorized(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})

	req := multipartRequest(t, http.MethodPost, "/posts/", "post", []byte("image"), nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePostHandlerErrorStatuses(t *testing.T) {
	cases := []struct {
		kind   error
		status int
		code   string
	}{
		{services.ErrInvalidImage, http.StatusUnprocessableEntity, "invalid_image"},
		{services.ErrCaptionService, http.StatusBadGateway, "caption_service"},
		{services.ErrStorageUpload, http.StatusBadGateway, "storage_upload"},
		{services.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
		{services.ErrPersistence, http.StatusInternalServerError, "persistence"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			posts := &stubPosts{createErr: &services.WorkflowError{Workflow: services.WorkflowCreatePost, Kind: tc.kind, Err: errors.New("cause")}}
			router := setupRouter(posts, &stubAccounts{})

			req := multipartRequest(t, http.MethodPost, "/posts/", "post", []byte("image"), nil)
			req.Header.Set("Authorization", "Bearer tok-3")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tc.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestGenerateCaptionHandler(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})

	req := httptest.NewRequest(http.MethodPut, "/posts/p-1/generate-caption", nil)
	req.Header.Set("Authorization", "Bearer tok-3")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "New caption generated", body["message"])
	assert.Equal(t, "fresh take 🌿", body["post"].(map[string]interface{})["caption"])
}

func TestGenerateCaptionHandlerErrors(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:   &services.WorkflowError{Kind: services.ErrPostNotFound},
		http.StatusForbidden:  &services.WorkflowError{Kind: services.ErrForbidden},
		http.StatusBadGateway: &services.WorkflowError{Kind: services.ErrImageFetch, Err: errors.New("404")},
	}
	for status, err := range cases {
		router := setupRouter(&stubPosts{regenerateErr: err}, &stubAccounts{})

		req := httptest.NewRequest(http.MethodPut, "/posts/p-9/generate-caption", nil)
		req.Header.Set("Authorization", "Bearer tok-3")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, status, w.Code, err.Error())
	}
}

func TestGetPostHandler(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts/p-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "post_not_found", decodeBody(t, w)["error"])
}

func TestRegisterHandler(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})

	req := multipartRequest(t, http.MethodPost, "/auth/register", "pfp", []byte("pfp-bytes"), map[string]string{
		"username": "kate", "password": "secret", "fullname": "Kate B", "bio": "hi",
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "token=tok-3")
	assert.Contains(t, w.Header().Get("Set-Cookie"), "HttpOnly")
	body := decodeBody(t, w)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "kate", user["username"])
	assert.NotContains(t, w.Body.String(), "hash")
}

func TestRegisterHandlerErrors(t *testing.T) {
	router := setupRouter(&stubPosts{}, &stubAccounts{})
	req := multipartRequest(t, http.MethodPost, "/auth/register", "pfp", nil, map[string]string{"username": "kate", "password": "x"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	router = setupRouter(&stubPosts{}, &stubAccounts{registerErr: services.ErrUserExists})
	req = multipartRequest(t, http.MethodPost, "/auth/register", "pfp", []byte("pfp"), map[string]string{"username": "kate", "password": "x"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginHandler(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{services.ErrUserNotFound, http.StatusNotFound},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		router := setupRouter(&stubPosts{}, &stubAccounts{loginErr: tc.err})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"kate","password":"secret"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, tc.status, w.Code)
		if tc.err == nil {
			assert.Contains(t, w.Header().Get("Set-Cookie"), "token=tok-3")
		}
	}

	router := setupRouter(&stubPosts{}, &stubAccounts{})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutHandler(t *testing.T) {
	accounts := &stubAccounts{}
	router := setupRouter(&stubPosts{}, accounts)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: "tok-3"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-3", accounts.loggedOut)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestProfileHandler(t *testing.T) {
	posts := &stubPosts{}
	router := setupRouter(posts, &stubAccounts{})

	req := httptest.NewRequest(http.MethodGet, "/auth/user?cursor_created_at=2025-01-02T03:04:05Z&cursor_id=p-9", nil)
	req.Header.Set("Authorization", "Bearer tok-3")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var profile models.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "kate", profile.User.Username)
	assert.Len(t, profile.Posts, 2)
	require.NotNil(t, posts.lastAfter)
	assert.Equal(t, "p-9", posts.lastAfter.ID)

	req = httptest.NewRequest(http.MethodGet, "/auth/user?cursor_created_at=yesterday", nil)
	req.Header.Set("Authorization", "Bearer tok-3")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	state := "connected"
	router.GET("/health", HealthHandler(func(ctx context.Context) string { return state }, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decodeBody(t, w)["status"])

	state = "disconnected"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, "disconnected", body["database"].(map[string]interface{})["status"])
}
