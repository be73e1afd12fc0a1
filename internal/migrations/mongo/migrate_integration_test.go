//go:build integration

package mongo

import (
	"context"
	"testing"
	"time"

	"licensedesk/internal/testutil"
	"licensedesk/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestRunMigration_Idempotent(t *testing.T) {
	h := testutil.NewMongoHelper(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, RunMigration(ctx, h.Client, h.DBName, logger.Nop()))
	require.NoError(t, RunMigration(ctx, h.Client, h.DBName, logger.Nop()))

	coll := h.Database.Collection(AppointmentCollection)
	doc := bson.M{
		"kind": "appointment", "slot_id": "0123456789abcdef01234567", "status": "pending",
		"price": "100", "currency": "PKR", "slot_date": "2025-06-01", "created_at": time.Now(),
	}
	_, err := coll.InsertOne(ctx, doc)
	require.NoError(t, err)

	_, err = coll.InsertOne(ctx, doc)
	require.True(t, mongo.IsDuplicateKeyError(err))

	rejected := bson.M{}
	for k, v := range doc {
		rejected[k] = v
	}
	rejected["status"] = "rejected"
	_, err = coll.InsertOne(ctx, rejected)
	require.NoError(t, err)
}
