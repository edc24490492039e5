// Package mongodb implements the repository interfaces on MongoDB, using the
// Users and Shows collections and the field names the web frontend's
// original backend wrote. Accounts it stored with a plaintext Password cannot
// log in until they reset their password: login only accepts bcrypt hashes
// and answers those accounts with invalid credentials.
//
// Uniqueness (login, email, user id, and title per user) is enforced by
// unique indexes created in EnsureIndexes, and the code lifecycle uses
// conditional single-document updates, so no check-then-write races remain.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/showdex/internal/apperror"
)

const (
	usersCollection = "Users"
	showsCollection = "Shows"
)

// Index names double as the way a duplicate-key error is attributed to a field.
const (
	indexUserID   = "uniq_user_id"
	indexLogin    = "uniq_login"
	indexEmail    = "uniq_email"
	indexUserShow = "uniq_user_show"
)

// Store owns the client connection. Users and Shows return the repositories.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// UserStore implements repository.UserRepository.
type UserStore struct {
	col *mongo.Collection
}

// ShowStore implements repository.ShowRepository.
type ShowStore struct {
	col *mongo.Collection
}

// Connect dials uri, verifies the connection with a ping and selects dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

// EnsureIndexes creates the unique indexes the repositories rely on.
// Creating an index that already exists is a no-op.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldUserID, Value: 1}}, Options: options.Index().SetUnique(true).SetName(indexUserID)},
		{Keys: bson.D{{Key: fieldLogin, Value: 1}}, Options: options.Index().SetUnique(true).SetName(indexLogin)},
		{Keys: bson.D{{Key: fieldEmail, Value: 1}}, Options: options.Index().SetUnique(true).SetName(indexEmail)},
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating user indexes: %w", err)
	}

	_, err = s.db.Collection(showsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldShowUserID, Value: 1}, {Key: fieldShowTitle, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexUserShow),
		},
		{Keys: bson.D{{Key: fieldShowUserID, Value: 1}, {Key: fieldShowGenre, Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating show indexes: %w", err)
	}
	return nil
}

// Users returns the user repository.
func (s *Store) Users() *UserStore {
	return &UserStore{col: s.db.Collection(usersCollection)}
}

// Shows returns the show repository.
func (s *Store) Shows() *ShowStore {
	return &ShowStore{col: s.db.Collection(showsCollection)}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// duplicateIndex returns the name of the unique index a write violated.
func duplicateIndex(err error) (string, bool) {
	if !mongo.IsDuplicateKeyError(err) {
		return "", false
	}
	msg := err.Error()
	for _, name := range []string{indexUserID, indexLogin, indexEmail, indexUserShow} {
		if strings.Contains(msg, name) {
			return name, true
		}
	}
	return "", true
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

func notFound(resource, id string) error {
	return apperror.NotFound(resource, id)
}
