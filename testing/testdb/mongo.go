package testdb

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	sharedMongo     *MongoContainer
	sharedMongoOnce sync.Once
)

type MongoContainer struct {
	Container *mongodb.MongoDBContainer
	Client    *mongo.Client
	URI       string
}

// SetupSharedMongo starts one MongoDB container per test binary.
func SetupSharedMongo(t *testing.T) *MongoContainer {
	t.Helper()

	sharedMongoOnce.Do(func() {
		ctx := context.Background()
		container, err := mongodb.Run(ctx, "mongo:7")
		require.NoError(t, err)

		uri, err := container.ConnectionString(ctx)
		require.NoError(t, err)

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		require.NoError(t, err)
		require.NoError(t, client.Ping(ctx, nil))

		sharedMongo = &MongoContainer{
			Container: container,
			Client:    client,
			URI:       uri,
		}
	})

	require.NotNil(t, sharedMongo, "shared mongo container failed to start")
	return sharedMongo
}

// Database returns a fresh database named after the test, dropped when the test ends.
func (mc *MongoContainer) Database(t *testing.T, name string) *mongo.Database {
	t.Helper()

	database := mc.Client.Database(name)
	require.NoError(t, database.Drop(context.Background()))
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
	})
	return database
}

func (mc *MongoContainer) Cleanup(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if mc.Client != nil {
		_ = mc.Client.Disconnect(ctx)
	}

	if mc.Container != nil {
		if err := mc.Container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
}
