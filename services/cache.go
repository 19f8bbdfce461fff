package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"captiongram/models"

	"github.com/go-redis/redis/v8"
)

const (
	POST_CACHE_TTL     = 24 * time.Hour
	MAX_PROFILE_SIZE   = 100
	PROFILE_KEY_PREFIX = "user_posts:"
	POST_KEY_PREFIX    = "post:"
	VERSION_KEY_PREFIX = "cache_version:"
	// Версия должна жить дольше данных, иначе сброс счетчика пропустит устаревшую запись
	VERSION_TTL = 2 * POST_CACHE_TTL
)

var errStaleCacheFill = errors.New("cache key changed since read")

// PostCache - кеш постов и лент профилей в Redis. Нулевой клиент отключает кеш.
//
// Запись в БД инвалидирует ключи и увеличивает их версию. Чтение из БД заполняет
// кеш только если версия ключа не изменилась с момента, когда чтение началось
type PostCache struct {
	client *redis.Client
}

func NewPostCache(client *redis.Client) *PostCache {
	return &PostCache{client: client}
}

func (pc *PostCache) enabled() bool {
	return pc != nil && pc.client != nil
}

func postKey(id string) string {
	return POST_KEY_PREFIX + id
}

func profileKey(ownerID int64) string {
	return fmt.Sprintf("%s%d", PROFILE_KEY_PREFIX, ownerID)
}

func versionKey(key string) string {
	return VERSION_KEY_PREFIX + key
}

// GetPost получает пост из кеша
func (pc *PostCache) GetPost(ctx context.Context, id string) (*models.Post, bool) {
	if !pc.enabled() {
		return nil, false
	}
	val, err := pc.client.Get(ctx, postKey(id)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("ERROR: Failed to read post %s from cache: %v", id, err)
		}
		return nil, false
	}
	var post models.Post
	if err := json.Unmarshal([]byte(val), &post); err != nil {
		return nil, false
	}
	return &post, true
}

// PostVersion возвращает версию ключа поста. Читать до обращения к БД
func (pc *PostCache) PostVersion(ctx context.Context, id string) int64 {
	return pc.version(ctx, postKey(id))
}

// ProfileVersion возвращает версию ленты профиля. Читать до обращения к БД
func (pc *PostCache) ProfileVersion(ctx context.Context, ownerID int64) int64 {
	return pc.version(ctx, profileKey(ownerID))
}

func (pc *PostCache) version(ctx context.Context, key string) int64 {
	if !pc.enabled() {
		return 0
	}
	v, err := pc.client.Get(ctx, versionKey(key)).Int64()
	if err != nil && err != redis.Nil {
		log.Printf("ERROR: Failed to read cache version of %s: %v", key, err)
	}
	return v
}

// CachePost кеширует прочитанный из БД пост, если с версии version его никто не менял
func (pc *PostCache) CachePost(ctx context.Context, post models.Post, version int64) {
	if !pc.enabled() {
		return
	}
	postData, err := json.Marshal(post)
	if err != nil {
		log.Printf("ERROR: Failed to marshal post for caching: %v", err)
		return
	}
	key := postKey(post.ID)
	err = pc.fillIfCurrent(ctx, key, version, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, postData, POST_CACHE_TTL)
	})
	pc.logFill(key, err)
}

// GetProfile получает первую страницу ленты профиля из кеша
func (pc *PostCache) GetProfile(ctx context.Context, ownerID int64, limit int) ([]models.Post, bool) {
	if !pc.enabled() {
		return nil, false
	}
	ids, err := pc.client.ZRevRange(ctx, profileKey(ownerID), 0, int64(limit-1)).Result()
	if err != nil || len(ids) == 0 {
		return nil, false
	}

	pipe := pc.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, postKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, false
	}

	posts := make([]models.Post, 0, len(ids))
	for _, cmd := range cmds {
		val, err := cmd.Result()
		if err != nil {
			// Пост вытеснен из кеша - лента неполная, читаем из БД
			return nil, false
		}
		var post models.Post
		if err := json.Unmarshal([]byte(val), &post); err != nil {
			return nil, false
		}
		posts = append(posts, post)
	}
	return posts, true
}

// CacheProfile перестраивает кеш ленты профиля по странице из БД.
// Если после чтения версии в ленту кто-то писал, перестройка пропускается
func (pc *PostCache) CacheProfile(ctx context.Context, ownerID int64, posts []models.Post, version int64) {
	if !pc.enabled() || len(posts) == 0 {
		return
	}
	key := profileKey(ownerID)
	err := pc.fillIfCurrent(ctx, key, version, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		for _, post := range posts {
			postData, err := json.Marshal(post)
			if err != nil {
				continue
			}
			pipe.Set(ctx, postKey(post.ID), postData, POST_CACHE_TTL)
			pipe.ZAdd(ctx, key, &redis.Z{
				Score:  float64(post.CreatedAt.UnixNano()),
				Member: post.ID,
			})
		}
		pipe.ZRemRangeByRank(ctx, key, 0, -MAX_PROFILE_SIZE-1)
		pipe.Expire(ctx, key, POST_CACHE_TTL)
	})
	pc.logFill(key, err)
}

// InvalidatePost удаляет пост и ленту его владельца из кеша
func (pc *PostCache) InvalidatePost(ctx context.Context, post models.Post) error {
	if !pc.enabled() {
		return fmt.Errorf("redis not available")
	}
	pipe := pc.client.TxPipeline()
	invalidate(ctx, pipe, postKey(post.ID))
	invalidate(ctx, pipe, profileKey(post.OwnerID))
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateProfile инвалидирует кеш ленты профиля
func (pc *PostCache) InvalidateProfile(ctx context.Context, ownerID int64) error {
	if !pc.enabled() {
		return fmt.Errorf("redis not available")
	}
	pipe := pc.client.TxPipeline()
	invalidate(ctx, pipe, profileKey(ownerID))
	_, err := pipe.Exec(ctx)
	return err
}

func invalidate(ctx context.Context, pipe redis.Pipeliner, key string) {
	pipe.Del(ctx, key)
	pipe.Incr(ctx, versionKey(key))
	pipe.Expire(ctx, versionKey(key), VERSION_TTL)
}

// fillIfCurrent выполняет запись под WATCH на версии ключа
func (pc *PostCache) fillIfCurrent(ctx context.Context, key string, version int64, fill func(pipe redis.Pipeliner)) error {
	vKey := versionKey(key)
	return pc.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != version {
			return errStaleCacheFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			fill(pipe)
			return nil
		})
		return err
	}, vKey)
}

func (pc *PostCache) logFill(key string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, errStaleCacheFill), errors.Is(err, redis.TxFailedErr):
		log.Printf("DEBUG: Skipped cache fill for %s, key changed during read", key)
	default:
		log.Printf("ERROR: Failed to cache %s: %v", key, err)
	}
}
