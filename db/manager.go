package db

import (
	"context"
	"fmt"
	"log"

	"captiongram/config"
	"captiongram/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

func ConnectDB() (err error) {
	if ORM != nil {
		log.Println("ORM is already initialized")
		return nil
	}

	var conf = config.AppConfig
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}

	gormConfig := &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
	}

	var database *gorm.DB
	switch conf.Databases.Driver {
	case "sqlite":
		database, err = gorm.Open(sqlite.Open(conf.Databases.SQLitePath), gormConfig)
		if err != nil {
			return err
		}
	case "postgres":
		if conf.Databases.Master.Host == "" {
			return fmt.Errorf("master database configuration is missing")
		}
		database, err = gorm.Open(postgres.Open(dsnFromConfig(conf.Databases.Master)), gormConfig)
		if err != nil {
			return err
		}

		// Реплики только для чтения
		replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
		for _, r := range conf.Databases.Replicas {
			replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
		}
		if len(replicaDSNs) > 0 {
			err = database.Use(dbresolver.Register(dbresolver.Config{
				Replicas: replicaDSNs,
				Policy:   dbresolver.RandomPolicy{},
			}))
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown database driver %q", conf.Databases.Driver)
	}

	if err = Migrate(database); err != nil {
		return err
	}

	ORM = database
	return nil
}

// Migrate создает таблицы и индексы для всех моделей
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&models.User{}, &models.UserTokens{}, &models.Post{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return CreatePostFeedIndex(database)
}

// GetReadOnlyDB возвращает подключение для чтения (реплики)
func GetReadOnlyDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Read)
}

// GetWriteDB возвращает подключение для записи (мастер)
func GetWriteDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Write)
}

// Status возвращает состояние подключения к БД для health check
func Status(ctx context.Context) string {
	if ORM == nil {
		return "disconnected"
	}
	sqlDB, err := ORM.DB()
	if err != nil {
		return "disconnected"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
