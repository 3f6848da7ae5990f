package store

import (
	"context"
	"errors"
	"time"

	"github.com/tasknest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// OTPRepository handles persistence for outstanding OTP records.
//
// Records expire automatically through the TTL index created by
// EnsureIndexes; the repository never has to reap them itself.
type OTPRepository struct {
	col *mongo.Collection
}

func NewOTPRepository(db *mongo.Database) *OTPRepository {
	return &OTPRepository{col: db.Collection(otpsCollection)}
}

// GetByEmail returns the single outstanding record for an email,
// regardless of purpose.
func (r *OTPRepository) GetByEmail(ctx context.Context, email string) (types.OTP, error) {
	var otp types.OTP
	err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&otp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.OTP{}, ErrNotFound
		}
		return types.OTP{}, err
	}
	return otp, nil
}

// GetByEmailAndPurpose returns the outstanding record for an email
// only if it was issued for the given purpose.
func (r *OTPRepository) GetByEmailAndPurpose(ctx context.Context, email string, purpose types.OTPPurpose) (types.OTP, error) {
	var otp types.OTP
	err := r.col.FindOne(ctx, bson.M{"email": email, "type": purpose}).Decode(&otp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.OTP{}, ErrNotFound
		}
		return types.OTP{}, err
	}
	return otp, nil
}

func (r *OTPRepository) Create(ctx context.Context, otp types.OTP) (types.OTP, error) {
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now()
	}

	result, err := r.col.InsertOne(ctx, otp)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.OTP{}, ErrDuplicate
		}
		return types.OTP{}, err
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		otp.ID = id
	}
	return otp, nil
}

func (r *OTPRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
