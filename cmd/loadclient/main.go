package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalDuration   int64
}

type Config struct {
	BaseURL        string
	Workers        int
	Duration       int
	PostCount      int
	RequestsPerSec int
	ImageSize      int
}

type postResponse struct {
	Post struct {
		ID string `json:"id"`
	} `json:"post"`
}

var (
	stats Stats
)

func main() {
	config := Config{}
	rootCmd := &cobra.Command{
		Use:   "loadclient",
		Short: "Load generator for the posts API",
		Run: func(cmd *cobra.Command, args []string) {
			run(config)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&config.BaseURL, "url", "http://localhost:8080", "Backend URL")
	flags.IntVar(&config.Workers, "workers", 4, "Number of concurrent workers")
	flags.IntVar(&config.Duration, "duration", 60, "Test duration in seconds (0 for infinite)")
	flags.IntVar(&config.PostCount, "posts", 0, "Total requests to send (0 for infinite)")
	flags.IntVar(&config.RequestsPerSec, "rps", 4, "Requests per second target")
	flags.IntVar(&config.ImageSize, "image-size", 1024, "Side of generated test images in pixels")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(config Config) {
	log.Printf("Starting load client with config: %+v", config)

	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	requestsPerWorker := config.RequestsPerSec / config.Workers
	if requestsPerWorker == 0 {
		requestsPerWorker = 1
	}

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go worker(i, config, requestsPerWorker, done, &wg)
	}

	go printStats()

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	if config.Duration > 0 {
		go func() {
			time.Sleep(time.Duration(config.Duration) * time.Second)
			stop()
		}()
	}

	go func() {
		<-sigChan
		log.Println("Received interrupt signal, shutting down...")
		stop()
	}()

	wg.Wait()
	printFinalStats()
}

func worker(id int, config Config, requestsPerSec int, done chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	// Подписи генерируются внешним сервисом, запросы медленные
	client := &http.Client{
		Timeout: 60 * time.Second,
	}

	token, err := register(client, config)
	if err != nil {
		log.Printf("Worker %d failed to register: %v", id, err)
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(requestsPerSec))
	defer ticker.Stop()

	var postIDs []string

	for {
		select {
		case <-done:
			log.Printf("Worker %d stopping, created %d posts", id, len(postIDs))
			return
		case <-ticker.C:
			if config.PostCount > 0 && int(atomic.LoadInt64(&stats.TotalRequests)) >= config.PostCount {
				return
			}

			operation := "create_post"
			if len(postIDs) > 0 && rand.Intn(3) == 0 {
				operation = "generate_caption"
			}

			start := time.Now()
			switch operation {
			case "create_post":
				var postID string
				postID, err = createPost(client, config, token)
				if err == nil {
					postIDs = append(postIDs, postID)
				}
			case "generate_caption":
				err = generateCaption(client, config.BaseURL, token, postIDs[rand.Intn(len(postIDs))])
			}
			duration := time.Since(start)

			atomic.AddInt64(&stats.TotalRequests, 1)
			atomic.AddInt64(&stats.TotalDuration, duration.Milliseconds())

			if err != nil {
				log.Printf("Worker %d %s failed: %v", id, operation, err)
				atomic.AddInt64(&stats.FailedRequests, 1)
			} else {
				atomic.AddInt64(&stats.SuccessRequests, 1)
			}
		}
	}
}

// testJPEG генерирует случайный градиент, чтобы сжатие не было тривиальным
func testJPEG(size int) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	seed := uint8(rand.Intn(255))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x) + seed, G: uint8(y), B: uint8(rand.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func multipartBody(field string, file []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := writer.CreateFormFile(field, "image.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &body, writer.FormDataContentType(), nil
}

func register(client *http.Client, config Config) (string, error) {
	pfp, err := testJPEG(256)
	if err != nil {
		return "", err
	}
	body, contentType, err := multipartBody("pfp", pfp, map[string]string{
		"username": gofakeit.Username() + fmt.Sprint(rand.Intn(100000)),
		"password": gofakeit.Password(true, true, true, false, false, 12),
		"fullname": gofakeit.Name(),
		"bio":      gofakeit.Sentence(8),
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(config.BaseURL+"/auth/register", contentType, body)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "token" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("no session cookie in response")
}

func createPost(client *http.Client, config Config, token string) (string, error) {
	data, err := testJPEG(config.ImageSize)
	if err != nil {
		return "", err
	}
	body, contentType, err := multipartBody("post", data, nil)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, config.BaseURL+"/posts/", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	var created postResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return created.Post.ID, nil
}

func generateCaption(client *http.Client, baseURL, token, postID string) error {
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/posts/%s/generate-caption", baseURL, postID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func summary() (total, success, failed, avgLatency int64, successRate float64) {
	total = atomic.LoadInt64(&stats.TotalRequests)
	success = atomic.LoadInt64(&stats.SuccessRequests)
	failed = atomic.LoadInt64(&stats.FailedRequests)
	totalDuration := atomic.LoadInt64(&stats.TotalDuration)
	if total > 0 {
		avgLatency = totalDuration / total
		successRate = float64(success) / float64(total) * 100
	}
	return
}

func printStats() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		total, success, failed, avgLatency, successRate := summary()
		log.Printf("[STATS] Total: %d | Success: %d | Failed: %d | Success Rate: %.2f%% | Avg Latency: %dms",
			total, success, failed, successRate, avgLatency)
	}
}

func printFinalStats() {
	total, success, failed, avgLatency, successRate := summary()

	log.Println("========== FINAL STATISTICS ==========")
	log.Printf("Total Requests:     %d", total)
	log.Printf("Successful:         %d", success)
	log.Printf("Failed:             %d", failed)
	log.Printf("Success Rate:       %.2f%%", successRate)
	log.Printf("Average Latency:    %dms", avgLatency)
	log.Println("======================================")
}
