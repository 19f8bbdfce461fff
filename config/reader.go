package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type ConfigSchema struct {
	Databases struct {
		// Driver - postgres или sqlite
		Driver     string     `yaml:"driver"`
		SQLitePath string     `yaml:"sqlite_path"`
		Master     DBConfig   `yaml:"master"`
		Replicas   []DBConfig `yaml:"replicas"`
	} `yaml:"databases"`
	Mongo struct {
		URL      string `yaml:"url"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	RabbitMQ struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Queue   string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	Backend struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		CookieSecure   bool     `yaml:"cookie_secure"`
		SessionTTL     string   `yaml:"session_ttl"`
	} `yaml:"backend"`
	Logs struct {
		// Level - debug включает режим отладки gin
		Level string `yaml:"level"`
	} `yaml:"logs"`
	Posts struct {
		// Store - sql или mongo
		Store string `yaml:"store"`
	} `yaml:"posts"`
	Caption struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"caption"`
	Storage struct {
		Provider string `yaml:"provider"`
		Timeout  string `yaml:"timeout"`
		ImageKit struct {
			PublicKey   string `yaml:"public_key"`
			PrivateKey  string `yaml:"private_key"`
			URLEndpoint string `yaml:"url_endpoint"`
		} `yaml:"imagekit"`
		S3 struct {
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"access_key"`
			SecretKey  string `yaml:"secret_key"`
			Bucket     string `yaml:"bucket"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"use_ssl"`
			PublicBase string `yaml:"public_base"`
		} `yaml:"s3"`
	} `yaml:"storage"`
	Images struct {
		Quality        int    `yaml:"quality"`
		MaxDimension   int    `yaml:"max_dimension"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
		FetchTimeout   string `yaml:"fetch_timeout"`
	} `yaml:"images"`
}

var AppConfig *ConfigSchema

// LoadConfig читает yaml файл, подставляет значения по умолчанию и секреты из окружения
func LoadConfig(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	conf, err := Parse(data)
	if err != nil {
		return err
	}
	AppConfig = conf
	return nil
}

// Parse разбирает конфигурацию без изменения глобального AppConfig
func Parse(data []byte) (*ConfigSchema, error) {
	conf := &ConfigSchema{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	conf.applyEnv()
	conf.applyDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *ConfigSchema) applyEnv() {
	setFromEnv(&c.Caption.APIKey, "GEMINI_API_KEY")
	setFromEnv(&c.Storage.ImageKit.PublicKey, "IMAGEKIT_PUBLIC_KEY")
	setFromEnv(&c.Storage.ImageKit.PrivateKey, "IMAGEKIT_PRIVATE_KEY")
	setFromEnv(&c.Storage.ImageKit.URLEndpoint, "IMAGEKIT_URL_ENDPOINT")
	setFromEnv(&c.Storage.S3.AccessKey, "S3_ACCESS_KEY")
	setFromEnv(&c.Storage.S3.SecretKey, "S3_SECRET_KEY")
	setFromEnv(&c.Mongo.URL, "MONGO_URL")
	setFromEnv(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setFromEnv(&c.Databases.Master.Host, "DB_HOST")
	setFromEnv(&c.Databases.Master.User, "DB_USER")
	setFromEnv(&c.Databases.Master.Password, "DB_PASSWORD")
	setFromEnv(&c.Databases.Master.DBName, "DB_NAME")
	if port, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		c.Databases.Master.Port = port
	}
	setFromEnv(&c.Redis.Host, "REDIS_HOST")
	if port, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		c.Redis.Port = port
	}
}

func (c *ConfigSchema) applyDefaults() {
	if c.Databases.Driver == "" {
		c.Databases.Driver = "postgres"
	}
	if c.Databases.SQLitePath == "" {
		c.Databases.SQLitePath = "captiongram.db"
	}
	if c.Databases.Master.Port == 0 {
		c.Databases.Master.Port = 5432
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Posts.Store == "" {
		c.Posts.Store = "sql"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "captiongram"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "post_events_push"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8080
	}
	if len(c.Backend.AllowedOrigins) == 0 {
		c.Backend.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.Backend.SessionTTL == "" {
		c.Backend.SessionTTL = "168h"
	}
	if c.Caption.Provider == "" {
		c.Caption.Provider = "gemini"
	}
	if c.Caption.Model == "" {
		c.Caption.Model = "gemini-2.5-flash"
	}
	if c.Caption.Timeout == "" {
		c.Caption.Timeout = "20s"
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "imagekit"
	}
	if c.Storage.Timeout == "" {
		c.Storage.Timeout = "20s"
	}
	if c.Images.Quality <= 0 || c.Images.Quality > 100 {
		c.Images.Quality = 70
	}
	if c.Images.MaxUploadBytes <= 0 {
		c.Images.MaxUploadBytes = 20 << 20
	}
	if c.Images.FetchTimeout == "" {
		c.Images.FetchTimeout = "20s"
	}
}

func (c *ConfigSchema) validate() error {
	for name, value := range map[string]string{
		"caption.timeout":      c.Caption.Timeout,
		"storage.timeout":      c.Storage.Timeout,
		"images.fetch_timeout": c.Images.FetchTimeout,
		"backend.session_ttl":  c.Backend.SessionTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %s=%q: %w", name, value, err)
		}
	}
	switch c.Logs.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logs.level %q", c.Logs.Level)
	}
	switch c.Posts.Store {
	case "sql", "mongo":
	default:
		return fmt.Errorf("unknown posts.store %q", c.Posts.Store)
	}
	if c.Caption.Provider != "gemini" {
		return fmt.Errorf("unknown caption.provider %q", c.Caption.Provider)
	}
	switch c.Storage.Provider {
	case "imagekit", "s3":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	return nil
}

// Duration возвращает уже провалидированную длительность
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func setFromEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
