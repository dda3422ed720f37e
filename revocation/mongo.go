package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoCollection is the collection name used by the CLI.
const DefaultMongoCollection = "tokens"

type mongoRecord struct {
	TokenID     string    `bson:"_id"`
	Subject     string    `bson:"user,omitempty"`
	Kind        string    `bson:"type,omitempty"`
	Blacklisted bool      `bson:"blacklisted"`
	ExpiresAt   time.Time `bson:"expiresAt"`
	IPAddress   string    `bson:"ipAddress,omitempty"`
	UserAgent   string    `bson:"userAgent,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// MongoStore keeps one document per token identifier. The server's TTL monitor removes
// expired documents roughly once a minute; Prune removes them immediately.
type MongoStore struct {
	coll         *mongo.Collection
	tombstoneTTL time.Duration
	now          func() time.Time
}

// NewMongoStore returns a MongoStore over coll. Call EnsureIndexes once at startup.
func NewMongoStore(coll *mongo.Collection, tombstoneTTL time.Duration) *MongoStore {
	if tombstoneTTL <= 0 {
		tombstoneTTL = DefaultTombstoneTTL
	}
	return &MongoStore{coll: coll, tombstoneTTL: tombstoneTTL, now: time.Now}
}

// EnsureIndexes creates the expiry TTL index and the per-user lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expiresAt_ttl").SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "user", Value: 1}},
			Options: options.Index().SetName("user"),
		},
	})
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	set := bson.M{
		"user":      rec.Subject,
		"type":      rec.Kind,
		"expiresAt": rec.ExpiresAt.UTC(),
		"ipAddress": rec.IssuedIP,
		"userAgent": rec.UserAgent,
		"createdAt": rec.CreatedAt.UTC(),
	}
	update := bson.M{"$set": set}
	if rec.Blacklisted {
		set["blacklisted"] = true
	} else {
		update["$setOnInsert"] = bson.M{"blacklisted": false}
	}
	return s.upsert(ctx, rec.TokenID, update)
}

func (s *MongoStore) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx,
		bson.M{"_id": tokenID, "blacklisted": true},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return n > 0, nil
}

func (s *MongoStore) Blacklist(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidRecord)
	}
	now := s.now().UTC()
	update := bson.M{
		"$set": bson.M{"blacklisted": true},
		"$setOnInsert": bson.M{
			"createdAt": now,
			"expiresAt": now.Add(s.tombstoneTTL),
		},
	}
	return s.upsert(ctx, tokenID, update)
}

func (s *MongoStore) Prune(ctx context.Context) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": s.now().UTC()}})
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	return int(res.DeletedCount), nil
}

// Get returns the stored record for tokenID. The bool is false when no record exists.
func (s *MongoStore) Get(ctx context.Context, tokenID string) (Record, bool, error) {
	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": tokenID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, false, nil
		}
		return Record{}, false, wrapUnavailable(err)
	}
	return Record{
		TokenID:     doc.TokenID,
		Subject:     doc.Subject,
		Kind:        doc.Kind,
		Blacklisted: doc.Blacklisted,
		ExpiresAt:   doc.ExpiresAt,
		IssuedIP:    doc.IPAddress,
		UserAgent:   doc.UserAgent,
		CreatedAt:   doc.CreatedAt,
	}, true, nil
}

// upsert applies update to the document with the given id, creating it if needed.
// Two concurrent upserts of a new id can race on the unique _id index; the loser
// re-applies its update to the document the winner created.
func (s *MongoStore) upsert(ctx context.Context, tokenID string, update bson.M) error {
	filter := bson.M{"_id": tokenID}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		_, err = s.coll.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
