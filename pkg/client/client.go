package client

import (
	"context"
	"strings"
	"time"

	"licensedesk/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const shutdownTimeout = 10 * time.Second

// Client holds the long-lived connections shared by a service. Any of them
// may be nil when the corresponding backend is not configured.
type Client struct {
	Mongo *mongo.Client
	Redis *redis.Client
	S3    *s3.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB",
			"error", err,
		)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

// SetRedis connects to redis when addr is set. A failed ping leaves Redis nil
// so callers fall back to in-memory stores.
func (c *Client) SetRedis(log *logger.Logger, addr, password string, timeout time.Duration) {
	if strings.TrimSpace(addr) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis not available, using in-memory stores", "error", err)
		_ = client.Close()
		return
	}

	log.Info("Successfully connected to Redis", "addr", addr)
	c.Redis = client
}

type S3Settings struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// SetS3 builds the S3 client. Static credentials and an endpoint override are
// used when set, which is how local MinIO/LocalStack setups are reached.
func (c *Client) SetS3(log *logger.Logger, settings S3Settings) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(settings.Region)}
	if strings.TrimSpace(settings.AccessKeyID) != "" && strings.TrimSpace(settings.SecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", "error", err)
	}

	c.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Info("S3 client configured", "region", settings.Region, "endpoint_override", settings.Endpoint != "")
}

func (c *Client) GracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if c.Mongo != nil {
		_ = c.Mongo.Disconnect(ctx)
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
