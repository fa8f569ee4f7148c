package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_payment_link_bot/internal/config"
	"tg_payment_link_bot/internal/domain"
)

// CollectionSessions is the Mongo collection holding conversation sessions.
const CollectionSessions = "sessions"

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// sessionCollection captures the collection operations the store performs.
type sessionCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

type sessionRecord struct {
	ChatID            int64     `bson:"chat_id"`
	UserID            int64     `bson:"user_id"`
	SelectedProductID string    `bson:"selected_product_id"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

// MongoStore is the durable session backing. It owns the Mongo client for its
// lifetime; the conversation handlers only see the Store interface.
type MongoStore struct {
	client   mongoClient
	db       *mongo.Database
	sessions sessionCollection
}

// NewMongoStore connects to Mongo using the supplied configuration and
// verifies connectivity with a ping.
func NewMongoStore(ctx context.Context, cfg config.Config) (*MongoStore, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDB)

	return &MongoStore{
		client:   client,
		db:       db,
		sessions: db.Collection(CollectionSessions),
	}, nil
}

// EnsureIndexes creates the unique session-key index. The collection is
// created implicitly if it does not already exist.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s == nil || s.db == nil {
		return errors.New("mongo store is not initialized")
	}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("session_key_unique").
				SetUnique(true),
		},
	}

	if _, err := createIndexes(ctx, s.db.Collection(CollectionSessions), indexes); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}

	return nil
}

// Get returns the session for the key and whether one exists.
func (s *MongoStore) Get(ctx context.Context, key domain.SessionKey) (domain.Session, bool, error) {
	if s == nil || s.sessions == nil {
		return domain.Session{}, false, errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return domain.Session{}, false, errors.New("context is required")
	}

	result := s.sessions.FindOne(ctx, bson.M{"chat_id": key.ChatID, "user_id": key.UserID})
	if result == nil {
		return domain.Session{}, false, errors.New("find session returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("find session: %w", err)
	}

	var record sessionRecord
	if err := result.Decode(&record); err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session: %w", err)
	}

	return domain.Session{
		ChatID:            record.ChatID,
		UserID:            record.UserID,
		SelectedProductID: record.SelectedProductID,
	}, true, nil
}

// Put upserts the session record for its key.
func (s *MongoStore) Put(ctx context.Context, session domain.Session) error {
	if s == nil || s.sessions == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"selected_product_id": session.SelectedProductID,
			"updated_at":          now,
		},
		"$setOnInsert": bson.M{
			"chat_id": session.ChatID,
			"user_id": session.UserID,
		},
	}

	_, err := s.sessions.UpdateOne(ctx,
		bson.M{"chat_id": session.ChatID, "user_id": session.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// Clear removes the session for the key; absent sessions are a no-op.
func (s *MongoStore) Clear(ctx context.Context, key domain.SessionKey) error {
	if s == nil || s.sessions == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if _, err := s.sessions.DeleteOne(ctx, bson.M{"chat_id": key.ChatID, "user_id": key.UserID}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// Count returns the number of stored sessions; used for diagnostics.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.sessions == nil {
		return 0, errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := s.sessions.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}

	return count, nil
}

// Ping verifies Mongo connectivity; used by the health endpoint.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the Mongo client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return s.client.Disconnect(ctx)
}
