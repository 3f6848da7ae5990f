package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection = "users"
	otpsCollection  = "otps"
	todosCollection = "todos"
)

// EnsureIndexes creates the indexes the repositories rely on:
// unique emails for users and OTP records, a TTL index expiring OTP
// records, and a unique slug plus an owner index for todos.
//
// The unique index on otps.email is what guarantees "at most one
// outstanding OTP per email" even when two resend requests race.
func EnsureIndexes(ctx context.Context, db *mongo.Database, otpTTL time.Duration) error {
	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(otpsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(otpTTL / time.Second)),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(todosCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_by", Value: 1}},
		},
	})
	return err
}
