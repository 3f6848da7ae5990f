package db

import (
	"context"
	"time"

	"github.com/tasknest/apiserver/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultPingTimeout     = 5 * time.Second
	defaultSelectionWindow = 10 * time.Second
)

// Open connects to MongoDB, verifies the connection with a ping, and
// returns a handle on the configured database.
func Open(ctx context.Context, cfg config.Config) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.Database.URI).
		SetServerSelectionTimeout(defaultSelectionWindow)

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancelPing()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return client.Database(cfg.Database.DBName), nil
}

// Close disconnects the client behind the database handle.
func Close(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	return db.Client().Disconnect(ctx)
}
