package repositories

import (
	"context"
	"time"

	"nakeslink/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetActiveProvidersWithLocation returns every active, verified healthcare
// provider that has a registered position. Distance ranking happens in the
// service layer so it uses the same formula the stored records carry.
func (r *UserRepository) GetActiveProvidersWithLocation(ctx context.Context) ([]models.User, error) {
	filter := bson.M{
		"role":       models.RoleNakes,
		"isActive":   true,
		"isVerified": true,
		"location":   bson.M{"$exists": true},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logrus.Errorf("Failed to get active providers: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var providers []models.User
	if err = cursor.All(ctx, &providers); err != nil {
		return nil, err
	}

	return providers, nil
}

// UpdateLastSeen stamps activity on a user; failures are logged only.
func (r *UserRepository) UpdateLastSeen(ctx context.Context, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"lastSeen": time.Now(), "updatedAt": time.Now()}},
	)
	if err != nil {
		logrus.Errorf("Failed to update last seen for user %s: %v", userID, err)
	}
	return err
}
