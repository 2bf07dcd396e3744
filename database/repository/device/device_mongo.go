package deviceRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nomadpi/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoDeviceRepo implements DeviceRepository using MongoDB.
type MongoDeviceRepo struct {
	coll *mongo.Collection
}

// NewMongoDeviceRepo creates a new instance of DeviceRepository using MongoDB.
func NewMongoDeviceRepo(db *mongo.Database, logger *zap.Logger) DeviceRepository {
	repo := &MongoDeviceRepo{coll: db.Collection("devices")}

	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("device repo: failed to create indexes", zap.Error(err))
	}
	return repo
}

func (r *MongoDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, device); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *MongoDeviceRepo) findOne(ctx context.Context, filter bson.M) (*models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var device models.Device
	if err := r.coll.FindOne(ctx, filter).Decode(&device); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch device: %w", err)
	}
	return &device, nil
}

func (r *MongoDeviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *MongoDeviceRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*models.Device, error) {
	return r.findOne(ctx, bson.M{"id": id, "ownerId": ownerID})
}

func (r *MongoDeviceRepo) GetByOwner(ctx context.Context, ownerID string) ([]models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve devices for %s: %w", ownerID, err)
	}
	defer cursor.Close(ctx)

	devices := []models.Device{}
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}

// Update writes the provisioning fields. Only the orchestrator calls it.
func (r *MongoDeviceRepo) Update(ctx context.Context, device *models.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"provisioningState": device.State,
		"publicKey":         device.PublicKey,
		"targetHost":        device.TargetHost,
		"updatedAt":         device.UpdatedAt,
	}
	unset := bson.M{}
	if device.ArtifactPath != "" {
		set["artifactPath"] = device.ArtifactPath
	} else {
		unset["artifactPath"] = ""
	}
	if device.LastError != nil {
		set["lastError"] = device.LastError
	} else {
		unset["lastError"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"id": device.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update device with id %s: %w", device.ID, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoDeviceRepo) FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"provisioningState": models.StatePending,
		"updatedAt":         bson.M{"$lt": cutoff},
	}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale devices: %w", err)
	}
	defer cursor.Close(ctx)

	var devices []models.Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode stale devices: %w", err)
	}
	return devices, nil
}
