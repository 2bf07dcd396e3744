package commandRepo

import (
	"context"
	"fmt"
	"time"

	"nomadpi/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type mongoCommandRepo struct {
	coll *mongo.Collection
}

// NewMongoCommandRepo returns a CommandRepository backed by the provisioning_commands collection.
func NewMongoCommandRepo(db *mongo.Database, logger *zap.Logger) CommandRepository {
	repo := &mongoCommandRepo{coll: db.Collection("provisioning_commands")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "invocationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "submittedAt", Value: -1}}},
	})
	if err != nil {
		logger.Warn("command repo: failed to create indexes", zap.Error(err))
	}
	return repo
}

func (r *mongoCommandRepo) Record(ctx context.Context, cmd models.ProvisioningCommand) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, cmd); err != nil {
		return fmt.Errorf("failed to record command %s: %w", cmd.InvocationID, err)
	}
	return nil
}

func (r *mongoCommandRepo) Complete(ctx context.Context, invocationID string, status models.CommandStatus, detail string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":      status,
		"detail":      detail,
		"completedAt": time.Now(),
	}}
	result, err := r.coll.UpdateOne(ctx, bson.M{"invocationId": invocationID}, update)
	if err != nil {
		return fmt.Errorf("failed to complete command %s: %w", invocationID, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoCommandRepo) GetByDevice(ctx context.Context, deviceID string) ([]models.ProvisioningCommand, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}}).SetLimit(50)
	cursor, err := r.coll.Find(ctx, bson.M{"deviceId": deviceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands for device %s: %w", deviceID, err)
	}
	defer cursor.Close(ctx)

	commands := []models.ProvisioningCommand{}
	if err := cursor.All(ctx, &commands); err != nil {
		return nil, err
	}
	return commands, nil
}
