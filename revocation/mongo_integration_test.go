//go:build integration

package revocation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func newMongoStoreTest(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("GOGUARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GOGUARD_TEST_MONGO_URI not set")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	coll := client.Database("goguard_test").Collection("tokens_" + uuid.NewString()[:8])
	t.Cleanup(func() { _ = coll.Drop(context.Background()) })

	store := NewMongoStore(coll, time.Hour)
	require.NoError(t, store.EnsureIndexes(context.Background()))
	return store
}

func TestMongoStoreLifecycle(t *testing.T) {
	store := newMongoStoreTest(t)
	ctx := context.Background()

	rec := Record{TokenID: "tok-1", Subject: "user-1", Kind: KindRefresh, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Insert(ctx, rec))

	bl, err := store.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	require.False(t, bl)

	require.NoError(t, store.Blacklist(ctx, "tok-1"))
	require.NoError(t, store.Blacklist(ctx, "tok-1"))
	bl, err = store.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, bl)

	require.NoError(t, store.Insert(ctx, rec))
	bl, err = store.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, bl, "insert must not clear the blacklist flag")
}

func TestMongoStorePruneRemovesOnlyExpired(t *testing.T) {
	store := newMongoStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, Record{TokenID: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, store.Insert(ctx, Record{TokenID: "new", ExpiresAt: time.Now().Add(time.Hour)}))

	n, err := store.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, err := store.Get(ctx, "new")
	require.NoError(t, err)
	require.True(t, ok)
}
