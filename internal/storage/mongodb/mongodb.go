package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"sessionauth/internal/domain/models"
	"sessionauth/internal/storage"
)

type Storage struct {
	client   *mongo.Client
	database *mongo.Database
	users    *mongo.Collection
	sessions *mongo.Collection
}

type userDoc struct {
	ID           bson.ObjectID `bson:"_id"`
	Email        string        `bson:"email"`
	PassHash     []byte        `bson:"pass_hash"`
	Name         string        `bson:"name"`
	Birthday     string        `bson:"birthday"`
	AvatarURL    string        `bson:"avatar_url"`
	OriginURL    string        `bson:"origin_url"`
	AccessToken  string        `bson:"access_token"`
	RefreshToken string        `bson:"refresh_token"`
	SessionID    string        `bson:"session_id"`
	CreatedAt    time.Time     `bson:"created_at"`
}

type sessionDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	UserID    string        `bson:"user_id"`
	CreatedAt time.Time     `bson:"created_at"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		database: db,
		users:    db.Collection("users"),
		sessions: db.Collection("sessions"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.email unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("sessions.user_id index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// SaveUser inserts a new user and returns its generated ID.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (string, error) {
	const op = "storage.mongodb.SaveUser"

	doc := userDoc{
		ID:        bson.NewObjectID(),
		Email:     user.Email,
		PassHash:  user.PassHash,
		Name:      user.Name,
		Birthday:  user.Birthday,
		AvatarURL: user.AvatarURL,
		OriginURL: user.OriginURL,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return doc.ID.Hex(), nil
}

// User retrieves a user by email.
func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.User"

	user, err := s.findUser(ctx, bson.D{{Key: "email", Value: email}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.mongodb.UserByID"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	user, err := s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateUserTokens overwrites the denormalized token state of a user.
func (s *Storage) UpdateUserTokens(ctx context.Context, userID string, tokens models.UserTokens) error {
	const op = "storage.mongodb.UpdateUserTokens"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "access_token", Value: tokens.AccessToken},
			{Key: "refresh_token", Value: tokens.RefreshToken},
			{Key: "session_id", Value: tokens.SessionID},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// CreateSession starts a new session for userID.
func (s *Storage) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	const op = "storage.mongodb.CreateSession"

	doc := sessionDoc{
		ID:        bson.NewObjectID(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

// Session retrieves a session by ID.
func (s *Storage) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.mongodb.Session"

	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	var doc sessionDoc
	if err := s.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "storage.mongodb.DeleteSession"

	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil
	}

	if _, err := s.sessions.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TakeSession removes a session and returns it with FindOneAndDelete.
// Concurrent callers race on the same document and only one of them gets it.
func (s *Storage) TakeSession(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.mongodb.TakeSession"

	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	var doc sessionDoc
	if err := s.sessions.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

func (s *Storage) findUser(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	return &models.User{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		PassHash:     doc.PassHash,
		Name:         doc.Name,
		Birthday:     doc.Birthday,
		AvatarURL:    doc.AvatarURL,
		OriginURL:    doc.OriginURL,
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
		SessionID:    doc.SessionID,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func (d sessionDoc) toModel() *models.Session {
	return &models.Session{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		CreatedAt: d.CreatedAt,
	}
}
