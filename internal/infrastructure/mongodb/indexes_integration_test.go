//go:build integration

package mongodb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/voyatra/voyatra/internal/infrastructure/mongodb"
	"github.com/voyatra/voyatra/tests/testutil"
)

func getCollectionIndexes(ctx context.Context, t *testing.T, db *mongo.Database, collection string) []bson.M {
	t.Helper()

	cursor, err := db.Collection(collection).Indexes().List(ctx)
	require.NoError(t, err)

	var indexes []bson.M
	require.NoError(t, cursor.All(ctx, &indexes))

	return indexes
}

func findIndexInDBByName(indexes []bson.M, name string) bson.M {
	for _, idx := range indexes {
		if idxName, ok := idx["name"].(string); ok && idxName == name {
			return idx
		}
	}
	return nil
}

func TestCreateAllIndexes(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)
	ctx := context.Background()

	// Act
	err := mongodb.CreateAllIndexes(ctx, db)

	// Assert
	require.NoError(t, err)

	collections := []string{
		mongodb.CollectionEvents,
		mongodb.CollectionBookingReadModel,
		mongodb.CollectionDailyStats,
		mongodb.CollectionRepairQueue,
	}

	for _, collName := range collections {
		indexes := getCollectionIndexes(ctx, t, db, collName)
		// At minimum the _id index plus at least one custom index
		assert.GreaterOrEqual(t, len(indexes), 2, "collection %s should have indexes", collName)
	}
}

func TestCreateAllIndexes_Idempotent(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)
	ctx := context.Background()

	require.NoError(t, mongodb.CreateAllIndexes(ctx, db))
	require.NoError(t, mongodb.CreateAllIndexes(ctx, db))

	indexes := getCollectionIndexes(ctx, t, db, mongodb.CollectionEvents)
	unique := findIndexInDBByName(indexes, "idx_events_stream_version_unique")
	require.NotNil(t, unique, "unique stream+version index should exist")
	assert.Equal(t, true, unique["unique"])
}
