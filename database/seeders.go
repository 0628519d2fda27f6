package database

import (
	"context"
	"fmt"
	"time"

	"nakeslink/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Seeder struct {
	Name        string
	Description string
	Seed        func(*mongo.Database) error
}

var seeders = []Seeder{
	{
		Name:        "demo_users",
		Description: "Create demo reporter and provider accounts for development",
		Seed:        seedDemoUsers,
	},
}

// RunSeeders executes all database seeders once.
func RunSeeders(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seedersCol := db.Collection("seeders")
	count, err := seedersCol.CountDocuments(ctx, bson.M{})
	if err == nil && count > 0 {
		logrus.Info("Seeders already run, skipping")
		return nil
	}

	logrus.Info("Running database seeders")

	for _, seeder := range seeders {
		logrus.Infof("Running seeder: %s", seeder.Name)

		if err := seeder.Seed(db); err != nil {
			return fmt.Errorf("seeder %s failed: %w", seeder.Name, err)
		}

		_, err := seedersCol.InsertOne(ctx, bson.M{
			"name":     seeder.Name,
			"seededAt": time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record seeder %s: %w", seeder.Name, err)
		}
	}

	logrus.Info("Database seeders completed")
	return nil
}

// seedDemoUsers creates one reporter, one admin, and a handful of verified
// providers spread around central Jakarta so nearby-provider discovery has
// something to find.
func seedDemoUsers(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection("users")

	now := time.Now()

	providerLocations := [][]float64{
		{106.8456, -6.2088}, // Monas
		{106.8272, -6.1751}, // Gambir
		{106.8650, -6.2297}, // Tebet
		{106.7980, -6.2250}, // Kebayoran
	}

	users := []interface{}{
		models.User{
			ID:         primitive.NewObjectID(),
			Email:      "demo.user@nakeslink.id",
			FullName:   "Demo Reporter",
			Phone:      "+6281234567890",
			Role:       models.RoleUser,
			IsVerified: true,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		models.User{
			ID:         primitive.NewObjectID(),
			Email:      "demo.admin@nakeslink.id",
			FullName:   "Demo Admin",
			Role:       models.RoleAdmin,
			IsVerified: true,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}

	for i, coords := range providerLocations {
		users = append(users, models.User{
			ID:             primitive.NewObjectID(),
			Email:          fmt.Sprintf("demo.nakes%d@nakeslink.id", i+1),
			FullName:       fmt.Sprintf("Demo Nakes %d", i+1),
			Phone:          fmt.Sprintf("+62812345679%02d", i),
			Role:           models.RoleNakes,
			Specialization: "general_practitioner",
			STRNumber:      fmt.Sprintf("STR-2024-%04d", i+1),
			Location: &models.UserLocation{
				Type:        "Point",
				Coordinates: coords,
				UpdatedAt:   now,
			},
			IsVerified: true,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	_, err := col.InsertMany(ctx, users)
	return err
}
