package repositories

import (
	"context"
	"errors"
	"time"

	"nakeslink/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrStaleDocument is returned by Save when the stored version no longer
// matches the in-memory one. Callers re-read and retry or surface a conflict.
var ErrStaleDocument = errors.New("document version mismatch")

type EmergencyRepository struct {
	collection *mongo.Collection
}

func NewEmergencyRepository(db *mongo.Database) *EmergencyRepository {
	return &EmergencyRepository{
		collection: db.Collection("emergencies"),
	}
}

// Create inserts a new emergency. Version starts at 1.
func (r *EmergencyRepository) Create(ctx context.Context, emergency *models.Emergency) error {
	emergency.ID = primitive.NewObjectID()
	emergency.Version = 1
	emergency.CreatedAt = time.Now()
	emergency.UpdatedAt = emergency.CreatedAt

	_, err := r.collection.InsertOne(ctx, emergency)
	if err != nil {
		logrus.Errorf("Failed to create emergency: %v", err)
		return err
	}

	return nil
}

func (r *EmergencyRepository) GetByID(ctx context.Context, emergencyID string) (*models.Emergency, error) {
	objectID, err := primitive.ObjectIDFromHex(emergencyID)
	if err != nil {
		return nil, err
	}

	var emergency models.Emergency
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&emergency)
	if err != nil {
		return nil, err
	}

	return &emergency, nil
}

// Save persists the full document with a compare-and-swap on the version
// field. On success the in-memory version is bumped; if another writer got
// there first, ErrStaleDocument comes back and nothing is written.
func (r *EmergencyRepository) Save(ctx context.Context, emergency *models.Emergency) error {
	currentVersion := emergency.Version
	emergency.Version = currentVersion + 1
	emergency.UpdatedAt = time.Now()

	result, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": emergency.ID, "version": currentVersion},
		emergency,
	)
	if err != nil {
		emergency.Version = currentVersion
		logrus.Errorf("Failed to save emergency %s: %v", emergency.ID.Hex(), err)
		return err
	}

	if result.MatchedCount == 0 {
		emergency.Version = currentVersion
		return ErrStaleDocument
	}

	return nil
}

// GetUserEmergencies returns one page of a user's emergency history, newest
// first, as list projections plus the total count.
func (r *EmergencyRepository) GetUserEmergencies(ctx context.Context, userID string, page, pageSize int, status string) ([]models.EmergencyListItem, int64, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, 0, err
	}

	filter := bson.M{"userId": objectID}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.Errorf("Failed to count user emergencies: %v", err)
		return nil, 0, err
	}

	skip := int64((page - 1) * pageSize)
	opts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetSkip(skip).
		SetLimit(int64(pageSize)).
		SetProjection(bson.M{
			"type":        1,
			"severity":    1,
			"description": 1,
			"location":    1,
			"priority":    1,
			"status":      1,
			"createdAt":   1,
			"updatedAt":   1,
			"resolvedAt":  1,
		})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to get user emergencies: %v", err)
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var items []models.EmergencyListItem
	if err = cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// GetActiveEmergencies returns all in-flight emergencies sorted by priority
// descending, then oldest first so the longest-waiting surface on ties.
func (r *EmergencyRepository) GetActiveEmergencies(ctx context.Context) ([]models.Emergency, error) {
	filter := bson.M{"status": bson.M{"$in": models.ActiveStatuses}}

	opts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "createdAt", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to get active emergencies: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var emergencies []models.Emergency
	if err = cursor.All(ctx, &emergencies); err != nil {
		return nil, err
	}

	return emergencies, nil
}

// GetActiveNear returns in-flight emergencies within radiusKm of the given
// point, nearest first via the 2dsphere index.
func (r *EmergencyRepository) GetActiveNear(ctx context.Context, longitude, latitude, radiusKm float64) ([]models.Emergency, error) {
	filter := bson.M{
		"status": bson.M{"$in": models.ActiveStatuses},
		"location": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{longitude, latitude},
				},
				"$maxDistance": radiusKm * 1000, // meters
			},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logrus.Errorf("Failed to get nearby active emergencies: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var emergencies []models.Emergency
	if err = cursor.All(ctx, &emergencies); err != nil {
		return nil, err
	}

	return emergencies, nil
}

// CountActive counts in-flight emergencies, optionally restricted to one
// reporter. Used for stats and creation-side sanity limits.
func (r *EmergencyRepository) CountActive(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"status": bson.M{"$in": models.ActiveStatuses}}

	if userID != "" {
		objectID, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			return 0, err
		}
		filter["userId"] = objectID
	}

	return r.collection.CountDocuments(ctx, filter)
}

// GetStats computes emergency volume and timing aggregates over a date
// range. Response time is creation to dispatch; resolution time is creation
// to resolvedAt.
func (r *EmergencyRepository) GetStats(ctx context.Context, startDate, endDate *time.Time) (*models.EmergencyStats, error) {
	match := bson.M{}
	if startDate != nil || endDate != nil {
		dateFilter := bson.M{}
		if startDate != nil {
			dateFilter["$gte"] = *startDate
		}
		if endDate != nil {
			dateFilter["$lte"] = *endDate
		}
		match["createdAt"] = dateFilter
	}

	total, err := r.collection.CountDocuments(ctx, match)
	if err != nil {
		return nil, err
	}

	activeMatch := bson.M{"status": bson.M{"$in": models.ActiveStatuses}}
	for k, v := range match {
		activeMatch[k] = v
	}
	active, err := r.collection.CountDocuments(ctx, activeMatch)
	if err != nil {
		return nil, err
	}

	stats := &models.EmergencyStats{
		TotalEmergencies:  total,
		ActiveEmergencies: active,
		ResponseTime:      map[string]float64{},
		ResolutionTime:    map[string]float64{},
		StartDate:         startDate,
		EndDate:           endDate,
	}

	responsePipeline := []bson.M{
		{"$match": mergeFilters(match, bson.M{"psc119.dispatchedAt": bson.M{"$exists": true}})},
		{"$project": bson.M{
			"seconds": bson.M{"$divide": []interface{}{
				bson.M{"$subtract": []interface{}{"$psc119.dispatchedAt", "$createdAt"}},
				1000,
			}},
		}},
		{"$group": bson.M{
			"_id": nil,
			"avg": bson.M{"$avg": "$seconds"},
			"min": bson.M{"$min": "$seconds"},
			"max": bson.M{"$max": "$seconds"},
		}},
	}

	if err := r.runTimingPipeline(ctx, responsePipeline, stats.ResponseTime); err != nil {
		return nil, err
	}

	resolutionPipeline := []bson.M{
		{"$match": mergeFilters(match, bson.M{"resolvedAt": bson.M{"$exists": true}})},
		{"$project": bson.M{
			"seconds": bson.M{"$divide": []interface{}{
				bson.M{"$subtract": []interface{}{"$resolvedAt", "$createdAt"}},
				1000,
			}},
		}},
		{"$group": bson.M{
			"_id": nil,
			"avg": bson.M{"$avg": "$seconds"},
			"min": bson.M{"$min": "$seconds"},
			"max": bson.M{"$max": "$seconds"},
		}},
	}

	if err := r.runTimingPipeline(ctx, resolutionPipeline, stats.ResolutionTime); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *EmergencyRepository) runTimingPipeline(ctx context.Context, pipeline []bson.M, out map[string]float64) error {
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		logrus.Errorf("Failed to aggregate emergency stats: %v", err)
		return err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Avg float64 `bson:"avg"`
		Min float64 `bson:"min"`
		Max float64 `bson:"max"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return err
	}

	if len(results) > 0 {
		out["avg"] = results[0].Avg
		out["min"] = results[0].Min
		out["max"] = results[0].Max
	}

	return nil
}

func mergeFilters(base, extra bson.M) bson.M {
	merged := bson.M{}
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
