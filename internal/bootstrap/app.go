package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"datasethub/internal/blobstore"
	"datasethub/internal/config"
	"datasethub/internal/model"
	mongoClient "datasethub/internal/platform/mongo"
	mysqlClient "datasethub/internal/platform/mysql"
	rabbitmqClient "datasethub/internal/platform/rabbitmq"
	redisClient "datasethub/internal/platform/redis"
	s3Client "datasethub/internal/platform/s3"
	"datasethub/internal/repository"
	"datasethub/internal/worker"
)

type App struct {
	Config      *config.Config
	Mongo       *mongodriver.Database
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Blobs       blobstore.Store
	AuditWorker *worker.AuditWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mongoDB, err := mongoClient.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.DatasetEvent{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	s3Cli, err := s3Client.New(ctx, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey)
	if err != nil {
		return nil, err
	}
	blobs := blobstore.NewS3Store(s3Cli, cfg.S3.Bucket, cfg.S3.BaseURL)

	auditRepo := repository.NewAuditRepository(mysqlDB)
	auditWorker := worker.NewAuditWorker(mqConn, auditRepo, cfg.RabbitMQ.EventQueue)
	if err := auditWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start audit worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		Mongo:       mongoDB,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		Blobs:       blobs,
		AuditWorker: auditWorker,
		StartedAt:   time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.AuditWorker != nil {
		a.AuditWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Mongo.Client().Disconnect(ctx); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
