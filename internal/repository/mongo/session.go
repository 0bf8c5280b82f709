package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sessionDocument struct {
	ID         string     `bson:"_id"`
	Title      string     `bson:"title"`
	Questions  []string   `bson:"questions"`
	OwnerCode  string     `bson:"ownerCode,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt"`
	ClaimedAt  *time.Time `bson:"claimedAt,omitempty"`
	ClaimToken string     `bson:"claimToken,omitempty"`
}

func (d *sessionDocument) toDomain() *domain.Session {
	s := &domain.Session{
		ID:         d.ID,
		Title:      d.Title,
		Questions:  d.Questions,
		OwnerCode:  d.OwnerCode,
		CreatedAt:  d.CreatedAt,
		State:      domain.StateOpen,
		ClaimedAt:  d.ClaimedAt,
		ClaimToken: d.ClaimToken,
	}
	if s.Questions == nil {
		s.Questions = []string{}
	}
	return s
}

// SessionStore keeps sessions in a MongoDB collection
type SessionStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewSessionStore connects to MongoDB and prepares the sessions collection.
// A positive ttl installs a TTL index on createdAt.
func NewSessionStore(ctx context.Context, cfg config.MongoConfig, ttl time.Duration) (*SessionStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	s := &SessionStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}

	if err := s.ensureIndexes(ctx, ttl); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func (s *SessionStore) ensureIndexes(ctx context.Context, ttl time.Duration) error {
	opts := options.Index().SetName("createdAt_ttl")
	if ttl > 0 {
		opts.SetExpireAfterSeconds(int32(ttl.Seconds()))
	}

	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: opts,
	})
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && (cmdErr.Name == "IndexOptionsConflict" || cmdErr.Name == "IndexKeySpecsConflict") {
			log.Warn().Err(err).Msg("Existing createdAt index differs from configured TTL, keeping it")
			return nil
		}
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client
func (s *SessionStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	doc := sessionDocument{
		ID:        session.ID,
		Title:     session.Title,
		Questions: session.Questions,
		OwnerCode: session.OwnerCode,
		CreatedAt: session.CreatedAt,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var doc sessionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return doc.toDomain(), nil
}

// Claim takes the finalize lease with a single findAndModify
func (s *SessionStore) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"claimedAt": nil},
			bson.M{"claimedAt": bson.M{"$lte": now.Add(-lease)}},
		},
	}
	update := bson.M{"$set": bson.M{"claimedAt": now, "claimToken": domain.NewClaimToken()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc sessionDocument
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("session %s not available: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	return doc.toDomain(), nil
}

// Release clears the claim only while claimToken still holds it
func (s *SessionStore) Release(ctx context.Context, id, claimToken string) error {
	filter := bson.M{"_id": id, "claimToken": claimToken}
	_, err := s.collection.UpdateOne(ctx, filter, bson.M{"$unset": bson.M{"claimedAt": "", "claimToken": ""}})
	if err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Purge removes sessions created before the cutoff. The TTL monitor only runs
// once a minute, so the janitor uses this to keep retention tight.
func (s *SessionStore) Purge(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": createdBefore}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
