package store

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"messageboard/logger"
	"messageboard/models"
)

// MongoStore keeps messages in a MongoDB collection.
type MongoStore struct {
	client   *mongo.Client
	messages *mongo.Collection
}

// OpenMongo connects, pings and ensures indexes on <database>.messages.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s := &MongoStore{client: client, messages: client.Database(database).Collection("messages")}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("mongo initialized", logger.FieldKV("database", database))
	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return ErrNotInitialized
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// InsertMessage performs idempotent insert (upsert ignoring duplicates).
func (s *MongoStore) InsertMessage(ctx context.Context, msg models.Message) error {
	if s == nil || s.messages == nil {
		return ErrNotInitialized
	}
	filter := bson.M{"id": msg.ID}
	update := bson.M{"$setOnInsert": msg}
	_, err := s.messages.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *MongoStore) GetAllMessages(ctx context.Context) ([]models.Message, error) {
	return s.find(ctx, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}), false)
}

func (s *MongoStore) GetRecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return s.GetAllMessages(ctx)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "id", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, opts, true)
}

func (s *MongoStore) DeleteMessage(ctx context.Context, id string) error {
	if s == nil || s.messages == nil {
		return ErrNotInitialized
	}
	res, err := s.messages.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) find(ctx context.Context, opts *options.FindOptions, reverse bool) ([]models.Message, error) {
	if s == nil || s.messages == nil {
		return nil, ErrNotInitialized
	}
	cur, err := s.messages.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)
	out := []models.Message{}
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if reverse {
		out = lo.Reverse(out)
	}
	return out, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_id")},
		{Keys: bson.D{{Key: "created_at", Value: 1}}, Options: options.Index().SetName("idx_created_at")},
	})
	return err
}
