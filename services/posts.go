package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"captiongram/captions"
	"captiongram/images"
	"captiongram/models"
	"captiongram/repository"
	"captiongram/storage"
)

const DefaultExternalTimeout = 20 * time.Second

// WorkflowObserver получает метрики шагов сценариев
type WorkflowObserver func(workflow, step string, duration time.Duration, err error)

type PostServiceConfig struct {
	Posts     repository.PostRepository
	Captioner captions.Generator
	Store     storage.Store
	Fetcher   ImageFetcher

	// Необязательные зависимости
	Cache    *PostCache
	Events   EventPublisher
	WS       *WSConnManager
	Cleanup  *CleanupQueue
	Observer WorkflowObserver

	Images         images.Options
	CaptionTimeout time.Duration
	StorageTimeout time.Duration
	FetchTimeout   time.Duration
}

// PostService - сценарии создания поста и перегенерации подписи
type PostService struct {
	posts     repository.PostRepository
	captioner captions.Generator
	store     storage.Store
	fetcher   ImageFetcher

	cache    *PostCache
	events   EventPublisher
	ws       *WSConnManager
	cleanup  *CleanupQueue
	observer WorkflowObserver

	imageOpts      images.Options
	captionTimeout time.Duration
	storageTimeout time.Duration
	fetchTimeout   time.Duration
}

func NewPostService(conf PostServiceConfig) *PostService {
	ps := &PostService{
		posts:          conf.Posts,
		captioner:      conf.Captioner,
		store:          conf.Store,
		fetcher:        conf.Fetcher,
		cache:          conf.Cache,
		events:         conf.Events,
		ws:             conf.WS,
		cleanup:        conf.Cleanup,
		observer:       conf.Observer,
		imageOpts:      conf.Images,
		captionTimeout: conf.CaptionTimeout,
		storageTimeout: conf.StorageTimeout,
		fetchTimeout:   conf.FetchTimeout,
	}
	if ps.fetcher == nil {
		ps.fetcher = NewHTTPImageFetcher(nil, 0)
	}
	if ps.captionTimeout <= 0 {
		ps.captionTimeout = DefaultExternalTimeout
	}
	if ps.storageTimeout <= 0 {
		ps.storageTimeout = DefaultExternalTimeout
	}
	if ps.fetchTimeout <= 0 {
		ps.fetchTimeout = DefaultExternalTimeout
	}
	return ps
}

// CreatePost сжимает изображение, генерирует подпись, загружает сжатые байты и сохраняет пост.
// Подпись и хранилище получают одни и те же сжатые байты.
func (ps *PostService) CreatePost(ctx context.Context, ownerID int64, raw []byte) (*models.Post, error) {
	log.Printf("DEBUG: CreatePost called for ownerID=%d, size=%d", ownerID, len(raw))

	if len(raw) == 0 {
		err := newWorkflowError(WorkflowCreatePost, StepReceivedUpload, ErrNoImage, nil)
		ps.observe(WorkflowCreatePost, StepReceivedUpload, 0, err)
		return nil, err
	}

	var (
		encoded []byte
		caption string
		object  *storage.Object
		post    *models.Post
	)

	saga := NewSaga(fmt.Sprintf("create_post_%d_%d", ownerID, time.Now().UnixNano()), ps.stepObserver(WorkflowCreatePost))

	saga.AddStep(StepCompressed, func(ctx context.Context) error {
		out, err := images.Compress(raw, ps.imageOpts)
		if err != nil {
			return newWorkflowError(WorkflowCreatePost, StepCompressed, ErrInvalidImage, err)
		}
		encoded = out
		return nil
	}, nil)

	saga.AddStep(StepCaptionGenerated, func(ctx context.Context) error {
		c, err := ps.generateCaption(ctx, WorkflowCreatePost, base64.StdEncoding.EncodeToString(encoded))
		if err != nil {
			return err
		}
		caption = c
		return nil
	}, nil)

	saga.AddStep(StepUploaded, func(ctx context.Context) error {
		obj, err := ps.upload(ctx, encoded, storage.NewKey(".jpg"), storage.FolderPosts)
		if err != nil {
			return err
		}
		object = obj
		return nil
	}, func(ctx context.Context) error {
		return ps.discardObject(ctx, *object, "post persistence failed")
	})

	saga.AddStep(StepPersisted, func(ctx context.Context) error {
		post = &models.Post{
			OwnerID:  ownerID,
			ImageURL: object.URL,
			ImageKey: object.FileID,
			Caption:  caption,
		}
		if err := ps.posts.Create(ctx, post); err != nil {
			return newWorkflowError(WorkflowCreatePost, StepPersisted, ErrPersistence, err)
		}
		return nil
	}, nil)

	if err := saga.Execute(ctx); err != nil {
		return nil, err
	}

	log.Printf("DEBUG: Post created with ID=%s for ownerID=%d", post.ID, ownerID)
	// Кеш сбрасывается до ответа клиенту: следующее чтение ленты увидит новый пост
	if ps.cache.enabled() {
		if err := ps.cache.InvalidateProfile(context.WithoutCancel(ctx), ownerID); err != nil {
			log.Printf("ERROR: Failed to invalidate profile cache for ownerID=%d: %v", ownerID, err)
		}
	}
	go ps.notify(context.Background(), *post, EventPostCreated)
	return post, nil
}

// RegenerateCaption перечитывает сохраненное изображение и записывает новую подпись.
// Параллельные перегенерации одного поста не согласуются: побеждает последняя запись
func (ps *PostService) RegenerateCaption(ctx context.Context, callerID int64, postID string) (*models.Post, error) {
	log.Printf("DEBUG: RegenerateCaption called for postID=%s by userID=%d", postID, callerID)

	var (
		post    *models.Post
		data    []byte
		encoded string
		caption string
		updated *models.Post
	)

	saga := NewSaga(fmt.Sprintf("regenerate_caption_%s_%d", postID, time.Now().UnixNano()), ps.stepObserver(WorkflowRegenerateCaption))

	saga.AddStep(StepLookup, func(ctx context.Context) error {
		found, err := ps.posts.FindByID(ctx, postID)
		if errors.Is(err, repository.ErrNotFound) {
			return newWorkflowError(WorkflowRegenerateCaption, StepLookup, ErrPostNotFound, err)
		}
		if err != nil {
			return newWorkflowError(WorkflowRegenerateCaption, StepLookup, ErrPersistence, err)
		}
		if found.OwnerID != callerID {
			return newWorkflowError(WorkflowRegenerateCaption, StepLookup, ErrForbidden, nil)
		}
		post = found
		return nil
	}, nil)

	saga.AddStep(StepRefetch, func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, ps.fetchTimeout)
		defer cancel()
		fetched, err := ps.fetcher.Fetch(fetchCtx, post.ImageURL)
		if err != nil {
			return externalError(fetchCtx, WorkflowRegenerateCaption, StepRefetch, ErrImageFetch, err)
		}
		// В хранилище лежат только сжатые JPEG, все остальное - ответ-заглушка
		if _, err := images.DecodeConfig(fetched); err != nil {
			return newWorkflowError(WorkflowRegenerateCaption, StepRefetch, ErrImageFetch,
				fmt.Errorf("stored object is not a jpeg: %v", err))
		}
		data = fetched
		return nil
	}, nil)

	// Изображение уже хранится сжатым, повторно не перекодируем
	saga.AddStep(StepEncode, func(ctx context.Context) error {
		encoded = base64.StdEncoding.EncodeToString(data)
		return nil
	}, nil)

	saga.AddStep(StepCaptionGenerated, func(ctx context.Context) error {
		c, err := ps.generateCaption(ctx, WorkflowRegenerateCaption, encoded)
		if err != nil {
			return err
		}
		caption = c
		return nil
	}, nil)

	saga.AddStep(StepUpdated, func(ctx context.Context) error {
		p, err := ps.posts.UpdateCaption(ctx, post.ID, caption)
		if errors.Is(err, repository.ErrNotFound) {
			return newWorkflowError(WorkflowRegenerateCaption, StepUpdated, ErrPostNotFound, err)
		}
		if err != nil {
			return newWorkflowError(WorkflowRegenerateCaption, StepUpdated, ErrPersistence, err)
		}
		updated = p
		return nil
	}, nil)

	if err := saga.Execute(ctx); err != nil {
		return nil, err
	}

	if ps.cache.enabled() {
		if err := ps.cache.InvalidatePost(context.WithoutCancel(ctx), *updated); err != nil {
			log.Printf("ERROR: Failed to invalidate cache for postID=%s: %v", updated.ID, err)
		}
	}
	go ps.notify(context.Background(), *updated, EventCaptionRegenerated)
	return updated, nil
}

// GetPost возвращает пост, сначала из кеша
func (ps *PostService) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	if post, ok := ps.cache.GetPost(ctx, postID); ok {
		return post, nil
	}
	version := ps.cache.PostVersion(ctx, postID)
	post, err := ps.posts.FindByID(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ps.cache.CachePost(ctx, *post, version)
	return post, nil
}

// ListOwnerPosts возвращает посты пользователя, новые первыми.
// Первая страница читается из кеша, если он заполнен
func (ps *PostService) ListOwnerPosts(ctx context.Context, ownerID int64, after *repository.Cursor, limit int) ([]models.Post, error) {
	if limit <= 0 || limit > repository.MaxPageSize {
		limit = repository.DefaultPageSize
	}
	if after == nil {
		if posts, ok := ps.cache.GetProfile(ctx, ownerID, limit); ok && len(posts) == limit {
			return posts, nil
		}
	}

	var version int64
	if after == nil {
		version = ps.cache.ProfileVersion(ctx, ownerID)
	}
	posts, err := ps.posts.ListByOwner(ctx, ownerID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if after == nil {
		ps.cache.CacheProfile(ctx, ownerID, posts, version)
	}
	return posts, nil
}

func (ps *PostService) generateCaption(ctx context.Context, workflow, imageBase64 string) (string, error) {
	captionCtx, cancel := context.WithTimeout(ctx, ps.captionTimeout)
	defer cancel()

	caption, err := ps.captioner.GenerateCaption(captionCtx, imageBase64, images.MIMEType)
	if err != nil {
		return "", externalError(captionCtx, workflow, StepCaptionGenerated, ErrCaptionService, err)
	}
	if strings.TrimSpace(caption) == "" {
		return "", newWorkflowError(workflow, StepCaptionGenerated, ErrCaptionService, captions.ErrEmptyCaption)
	}
	return caption, nil
}

func (ps *PostService) upload(ctx context.Context, data []byte, key, folder string) (*storage.Object, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, ps.storageTimeout)
	defer cancel()

	obj, err := ps.store.Upload(uploadCtx, data, key, folder)
	if err != nil {
		return nil, externalError(uploadCtx, WorkflowCreatePost, StepUploaded, ErrStorageUpload, err)
	}
	if obj == nil || obj.URL == "" {
		return nil, newWorkflowError(WorkflowCreatePost, StepUploaded, ErrStorageUpload, errors.New("storage returned no url"))
	}
	return obj, nil
}

// discardObject удаляет загруженный объект; при неудаче ставит удаление в очередь
func (ps *PostService) discardObject(ctx context.Context, obj storage.Object, reason string) error {
	deleteCtx, cancel := context.WithTimeout(ctx, ps.storageTimeout)
	defer cancel()

	err := ps.store.Delete(deleteCtx, obj)
	if err == nil {
		log.Printf("DEBUG: Removed orphaned object %s", obj.URL)
		return nil
	}
	if qErr := ps.cleanup.Enqueue(ctx, CleanupTask{Object: obj, Reason: reason}); qErr != nil {
		log.Printf("ERROR: Orphaned object %s left in storage: %v", obj.URL, qErr)
	}
	return err
}

// notify уведомляет владельца поста через RabbitMQ, при ошибке напрямую через WebSocket
func (ps *PostService) notify(ctx context.Context, post models.Post, eventName string) {
	event := newPostEvent(eventName, post)
	if ps.events != nil {
		err := ps.events.Publish(ctx, event)
		if err == nil {
			return
		}
		log.Printf("DEBUG: RabbitMQ error, using fallback for userID=%d: %v", post.OwnerID, err)
	}
	// Fallback: отправляем напрямую через WebSocket
	ps.ws.SendJSON(post.OwnerID, event)
}

func (ps *PostService) stepObserver(workflow string) StepObserver {
	return func(step string, duration time.Duration, err error) {
		ps.observe(workflow, step, duration, err)
	}
}

func (ps *PostService) observe(workflow, step string, duration time.Duration, err error) {
	if ps.observer != nil {
		ps.observer(workflow, step, duration, err)
	}
}
