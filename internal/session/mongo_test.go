package session

import (
	"context"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_payment_link_bot/internal/domain"
)

type fakeSessionCollection struct {
	docs map[domain.SessionKey]sessionRecord

	lastUpdateFilter bson.M
	lastUpdate       bson.M
	upsertUsed       bool
}

func newFakeSessionCollection() *fakeSessionCollection {
	return &fakeSessionCollection{docs: make(map[domain.SessionKey]sessionRecord)}
}

func keyFromFilter(filter interface{}) (domain.SessionKey, error) {
	doc, ok := filter.(bson.M)
	if !ok {
		return domain.SessionKey{}, fmt.Errorf("unexpected filter type %T", filter)
	}

	chatID, ok := doc["chat_id"].(int64)
	if !ok {
		return domain.SessionKey{}, fmt.Errorf("missing chat_id in filter %v", doc)
	}
	userID, ok := doc["user_id"].(int64)
	if !ok {
		return domain.SessionKey{}, fmt.Errorf("missing user_id in filter %v", doc)
	}

	return domain.SessionKey{ChatID: chatID, UserID: userID}, nil
}

func (f *fakeSessionCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	key, err := keyFromFilter(filter)
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}

	record, ok := f.docs[key]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}

	return mongo.NewSingleResultFromDocument(record, nil, nil)
}

func (f *fakeSessionCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	key, err := keyFromFilter(filter)
	if err != nil {
		return nil, err
	}

	updateDoc, ok := update.(bson.M)
	if !ok {
		return nil, fmt.Errorf("unexpected update type %T", update)
	}

	f.lastUpdateFilter = filter.(bson.M)
	f.lastUpdate = updateDoc
	for _, opt := range opts {
		if opt.Upsert != nil && *opt.Upsert {
			f.upsertUsed = true
		}
	}

	set := updateDoc["$set"].(bson.M)
	record := f.docs[key]
	record.ChatID = key.ChatID
	record.UserID = key.UserID
	if selected, ok := set["selected_product_id"].(string); ok {
		record.SelectedProductID = selected
	}

	result := &mongo.UpdateResult{MatchedCount: 1}
	if _, existed := f.docs[key]; !existed {
		result = &mongo.UpdateResult{UpsertedCount: 1}
	}
	f.docs[key] = record

	return result, nil
}

func (f *fakeSessionCollection) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	key, err := keyFromFilter(filter)
	if err != nil {
		return nil, err
	}

	if _, ok := f.docs[key]; !ok {
		return &mongo.DeleteResult{DeletedCount: 0}, nil
	}

	delete(f.docs, key)
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func (f *fakeSessionCollection) CountDocuments(context.Context, interface{}, ...*options.CountOptions) (int64, error) {
	return int64(len(f.docs)), nil
}

func TestMongoStorePutUpsertsByKey(t *testing.T) {
	coll := newFakeSessionCollection()
	store := &MongoStore{sessions: coll}
	ctx := context.Background()

	if err := store.Put(ctx, domain.Session{ChatID: 10, UserID: 20, SelectedProductID: "prod_a"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if !coll.upsertUsed {
		t.Fatalf("expected upsert option on session writes")
	}
	if coll.lastUpdateFilter["chat_id"] != int64(10) || coll.lastUpdateFilter["user_id"] != int64(20) {
		t.Fatalf("expected filter on session key, got %v", coll.lastUpdateFilter)
	}

	set := coll.lastUpdate["$set"].(bson.M)
	if set["selected_product_id"] != "prod_a" {
		t.Fatalf("expected selected_product_id in $set, got %v", set)
	}
	if _, ok := set["updated_at"]; !ok {
		t.Fatalf("expected updated_at in $set, got %v", set)
	}

	// Second write for the same key replaces the selection.
	if err := store.Put(ctx, domain.Session{ChatID: 10, UserID: 20, SelectedProductID: "prod_b"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	session, ok, err := store.Get(ctx, domain.SessionKey{ChatID: 10, UserID: 20})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected session to exist")
	}
	if session.SelectedProductID != "prod_b" {
		t.Fatalf("expected last write to win, got %q", session.SelectedProductID)
	}
}

func TestMongoStoreGetAbsent(t *testing.T) {
	store := &MongoStore{sessions: newFakeSessionCollection()}

	_, ok, err := store.Get(context.Background(), domain.SessionKey{ChatID: 1, UserID: 2})
	if err != nil {
		t.Fatalf("expected absent session to be non-error, got %v", err)
	}
	if ok {
		t.Fatalf("expected no session for unknown key")
	}
}

func TestMongoStoreClearIsIdempotent(t *testing.T) {
	coll := newFakeSessionCollection()
	store := &MongoStore{sessions: coll}
	ctx := context.Background()
	key := domain.SessionKey{ChatID: 1, UserID: 2}

	if err := store.Clear(ctx, key); err != nil {
		t.Fatalf("Clear on empty collection returned error: %v", err)
	}

	if err := store.Put(ctx, domain.Session{ChatID: 1, UserID: 2, SelectedProductID: "prod_a"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := store.Clear(ctx, key); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	_, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected session to be gone after clear")
	}
}

func TestMongoStoreCount(t *testing.T) {
	coll := newFakeSessionCollection()
	store := &MongoStore{sessions: coll}
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := store.Put(ctx, domain.Session{ChatID: i, UserID: i, SelectedProductID: "prod"}); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 sessions, got %d", count)
	}
}

func TestMongoStoreUninitialized(t *testing.T) {
	var store *MongoStore

	if _, _, err := store.Get(context.Background(), domain.SessionKey{}); err == nil {
		t.Fatalf("expected error from uninitialized store")
	}
	if err := store.Put(context.Background(), domain.Session{}); err == nil {
		t.Fatalf("expected error from uninitialized store")
	}
	if err := store.Clear(context.Background(), domain.SessionKey{}); err == nil {
		t.Fatalf("expected error from uninitialized store")
	}
}
