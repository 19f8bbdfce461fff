package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"captiongram/api/handlers"
	"captiongram/api/middleware"
	"captiongram/api/routes"
	"captiongram/captions"
	"captiongram/config"
	"captiongram/db"
	"captiongram/images"
	"captiongram/repository"
	"captiongram/services"
	"captiongram/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const serviceName = "captiongram"

func main() {
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "AI caption social posting backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(configPath); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create tables and indexes",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate()
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrate() error {
	// ConnectDB применяет миграции SQL схемы
	if err := db.ConnectDB(); err != nil {
		return err
	}
	if config.AppConfig.Posts.Store == "mongo" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, err := repository.ConnectMongo(ctx, config.AppConfig.Mongo.URL)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		repo := repository.NewMongoPostRepository(client.Database(config.AppConfig.Mongo.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	log.Println("Migrations applied")
	return nil
}

func newPostRepository(ctx context.Context, conf *config.ConfigSchema) (repository.PostRepository, func(), error) {
	if conf.Posts.Store != "mongo" {
		return repository.NewGormPostRepository(db.ORM), func() {}, nil
	}
	client, err := repository.ConnectMongo(ctx, conf.Mongo.URL)
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() { _ = client.Disconnect(context.Background()) }
	repo := repository.NewMongoPostRepository(client.Database(conf.Mongo.Database))
	if err := repo.EnsureIndexes(ctx); err != nil {
		disconnect()
		return nil, nil, err
	}
	return repo, disconnect, nil
}

func newStore(conf *config.ConfigSchema) (storage.Store, error) {
	switch conf.Storage.Provider {
	case "s3":
		s3 := conf.Storage.S3
		return storage.NewS3(storage.S3Config{
			Endpoint:   s3.Endpoint,
			AccessKey:  s3.AccessKey,
			SecretKey:  s3.SecretKey,
			Bucket:     s3.Bucket,
			Region:     s3.Region,
			UseSSL:     s3.UseSSL,
			PublicBase: s3.PublicBase,
		})
	default:
		ik := conf.Storage.ImageKit
		return storage.NewImageKit(storage.ImageKitConfig{
			PublicKey:   ik.PublicKey,
			PrivateKey:  ik.PrivateKey,
			URLEndpoint: ik.URLEndpoint,
		})
	}
}

func serve() error {
	conf := config.AppConfig
	log.Printf("Starting %s on %s:%d", serviceName, conf.Backend.Host, conf.Backend.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.ConnectDB(); err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}

	posts, closePosts, err := newPostRepository(ctx, conf)
	if err != nil {
		return fmt.Errorf("failed to init post repository: %w", err)
	}
	defer closePosts()

	captioner, err := captions.NewGemini(ctx, conf.Caption.APIKey, conf.Caption.Model)
	if err != nil {
		return err
	}

	store, err := newStore(conf)
	if err != nil {
		return err
	}

	if conf.Redis.Enabled {
		if err := services.InitRedis(); err != nil {
			log.Printf("ERROR: Redis unavailable, cache and cleanup queue disabled: %v", err)
		}
	}
	defer services.CloseRedis()

	cache := services.NewPostCache(services.RedisClient)
	cleanup := services.NewCleanupQueue(services.RedisClient, store)
	cleanup.StartWorkers(ctx)

	ws := services.GlobalWSConnManager
	var events services.EventPublisher
	if conf.RabbitMQ.Enabled {
		rabbit, err := services.InitRabbitMQ(conf.RabbitMQ.URL)
		if err != nil {
			log.Printf("ERROR: RabbitMQ unavailable, pushing events directly: %v", err)
		} else {
			defer rabbit.Close()
			if err := rabbit.StartPostEventConsumer(ctx, conf.RabbitMQ.Queue, ws); err != nil {
				log.Printf("ERROR: Failed to start post event consumer: %v", err)
			}
			events = rabbit
		}
	}

	imageOpts := images.Options{Quality: conf.Images.Quality, MaxDimension: conf.Images.MaxDimension}
	storageTimeout := config.Duration(conf.Storage.Timeout)

	postService := services.NewPostService(services.PostServiceConfig{
		Posts:          posts,
		Captioner:      captioner,
		Store:          store,
		Fetcher:        services.NewHTTPImageFetcher(nil, conf.Images.MaxUploadBytes),
		Cache:          cache,
		Events:         events,
		WS:             ws,
		Cleanup:        cleanup,
		Observer:       middleware.RecordWorkflowStep,
		Images:         imageOpts,
		CaptionTimeout: config.Duration(conf.Caption.Timeout),
		StorageTimeout: storageTimeout,
		FetchTimeout:   config.Duration(conf.Images.FetchTimeout),
	})
	userService := services.NewUserService(db.ORM, store, cleanup, imageOpts,
		config.Duration(conf.Backend.SessionTTL), storageTimeout)

	if conf.Logs.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware(serviceName))
	router.Use(routes.CORS(conf.Backend.AllowedOrigins))

	routes.PublicApi(router, routes.Handlers{
		Auth:   handlers.NewAuthHandlers(userService, postService, conf.Backend.CookieSecure, conf.Images.MaxUploadBytes),
		Posts:  handlers.NewPostHandlers(postService, conf.Images.MaxUploadBytes),
		Health: handlers.HealthHandler(db.Status, cleanup.GetStats),
		WS:     handlers.NewWSPostsHandler(ws, conf.Backend.AllowedOrigins),
		Tokens: userService,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.Backend.Host, conf.Backend.Port),
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: Server shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("Server stopped")
	return nil
}
