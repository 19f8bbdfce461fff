package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"captiongram/storage"

	"github.com/go-redis/redis/v8"
)

const (
	STORAGE_CLEANUP_QUEUE = "storage_cleanup_queue"
	CLEANUP_WORKER_COUNT  = 2
	MAX_CLEANUP_ATTEMPTS  = 5
)

// CleanupTask - объект хранилища, оставшийся без поста после неудачной компенсации
type CleanupTask struct {
	Object   storage.Object `json:"object"`
	Attempts int            `json:"attempts"`
	Reason   string         `json:"reason"`
}

// CleanupQueue повторяет удаление осиротевших объектов из хранилища
type CleanupQueue struct {
	client *redis.Client
	store  storage.Store
	// retryDelay умножается на номер попытки
	retryDelay time.Duration
}

func NewCleanupQueue(client *redis.Client, store storage.Store) *CleanupQueue {
	return &CleanupQueue{client: client, store: store, retryDelay: time.Second}
}

// Enqueue добавляет задачу удаления объекта в очередь
func (q *CleanupQueue) Enqueue(ctx context.Context, task CleanupTask) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("redis not available")
	}
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.RPush(ctx, STORAGE_CLEANUP_QUEUE, taskData).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	log.Printf("Enqueued storage cleanup for %s (attempt %d)", task.Object.URL, task.Attempts+1)
	return nil
}

// StartWorkers запускает воркеры для обработки очереди
func (q *CleanupQueue) StartWorkers(ctx context.Context) {
	if q == nil || q.client == nil {
		return
	}
	for i := 0; i < CLEANUP_WORKER_COUNT; i++ {
		go q.worker(ctx, i)
	}
}

func (q *CleanupQueue) worker(ctx context.Context, workerID int) {
	log.Printf("Storage cleanup worker %d started", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Storage cleanup worker %d stopping", workerID)
			return
		default:
			result, err := q.client.BLPop(ctx, 5*time.Second, STORAGE_CLEANUP_QUEUE).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				log.Printf("Worker %d error getting task: %v", workerID, err)
				time.Sleep(time.Second)
				continue
			}
			if len(result) < 2 {
				continue
			}

			var task CleanupTask
			if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
				log.Printf("Worker %d error unmarshaling task: %v", workerID, err)
				continue
			}
			q.process(ctx, task, workerID)
		}
	}
}

func (q *CleanupQueue) process(ctx context.Context, task CleanupTask, workerID int) {
	err := q.store.Delete(ctx, task.Object)
	if err == nil {
		log.Printf("Worker %d removed orphaned object %s", workerID, task.Object.URL)
		return
	}

	task.Attempts++
	if task.Attempts >= MAX_CLEANUP_ATTEMPTS {
		log.Printf("ERROR: Worker %d giving up on orphaned object %s after %d attempts: %v", workerID, task.Object.URL, task.Attempts, err)
		return
	}
	log.Printf("Worker %d failed to remove %s: %v, retrying", workerID, task.Object.URL, err)
	select {
	case <-ctx.Done():
		// Воркер останавливается, но задача не должна потеряться
		ctx = context.WithoutCancel(ctx)
	case <-time.After(time.Duration(task.Attempts) * q.retryDelay):
	}
	if err := q.Enqueue(ctx, task); err != nil {
		log.Printf("ERROR: Worker %d failed to requeue cleanup task: %v", workerID, err)
	}
}

// GetStats возвращает статистику очереди
func (q *CleanupQueue) GetStats(ctx context.Context) map[string]interface{} {
	stats := make(map[string]interface{})
	if q == nil || q.client == nil {
		stats["error"] = "Redis not available"
		return stats
	}
	stats["queue_length"] = q.client.LLen(ctx, STORAGE_CLEANUP_QUEUE).Val()
	stats["worker_count"] = CLEANUP_WORKER_COUNT
	stats["queue_name"] = STORAGE_CLEANUP_QUEUE
	return stats
}
