// Package testutil holds helpers for tests that need a live MongoDB. Such
// tests carry the integration build tag and read TEST_MONGO_URI.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"licensedesk/pkg/client"
	"licensedesk/pkg/config"
	"licensedesk/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	EnvTestMongoURI   = "TEST_MONGO_URI"
	ConnectionTimeout = 10 * time.Second
)

// MongoHelper owns a throwaway database for one test.
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
}

// NewMongoHelper connects to TEST_MONGO_URI and creates a uniquely named
// database that is dropped on cleanup. The test is skipped when the variable
// is unset.
func NewMongoHelper(t *testing.T) *MongoHelper {
	t.Helper()

	uri := os.Getenv(EnvTestMongoURI)
	if uri == "" {
		t.Skipf("%s not set", EnvTestMongoURI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	dbName := "licensedesk_test_" + strings.ToLower(primitive.NewObjectID().Hex())
	h := &MongoHelper{Client: mc, Database: mc.Database(dbName), DBName: dbName}
	t.Cleanup(func() { h.close(t) })
	return h
}

// Config returns a service config pointing at the helper's database.
func (m *MongoHelper) Config() *config.Config {
	cfg := config.FromEnv()
	cfg.MongoDatabaseName = m.DBName
	cfg.Log = logger.Nop()
	cfg.Client = &client.Client{Mongo: m.Client}
	return cfg
}

func (m *MongoHelper) CountDocuments(t *testing.T, collectionName string, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if filter == nil {
		filter = bson.M{}
	}
	count, err := m.Database.Collection(collectionName).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collectionName, err)
	}
	return count
}

func (m *MongoHelper) close(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Database.Drop(ctx); err != nil {
		t.Logf("warning: failed to drop %s: %v", m.DBName, err)
	}
	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}
