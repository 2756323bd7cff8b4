package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/log"
)

const (
	appName      = "ilix"
	databaseName = "ilix"

	poolsCollection     = "devices_pools"
	transfersCollection = "files_transfers"
	bucketName          = "ilix_fs"
)

// MongoStore implements Store on top of MongoDB: one collection per logical
// container plus a GridFS bucket for encrypted blobs.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	bucket *mongo.GridFSBucket

	hasher   keyphrase.Hasher
	dictPath string
	logger   zerolog.Logger
}

// Options configures a MongoStore.
type Options struct {
	URI            string
	Hasher         keyphrase.Hasher
	DictionaryPath string
}

// Connect establishes the MongoDB connection and wires up the GridFS bucket.
func Connect(ctx context.Context, opts Options) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI).SetAppName(appName))
	if err != nil {
		return nil, apperr.New(apperr.MongoError, fmt.Errorf("connect: %w", err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, apperr.New(apperr.MongoError, fmt.Errorf("ping: %w", err))
	}

	db := client.Database(databaseName)
	return &MongoStore{
		client:   client,
		db:       db,
		bucket:   db.GridFSBucket(options.GridFSBucket().SetName(bucketName)),
		hasher:   opts.Hasher,
		dictPath: opts.DictionaryPath,
		logger:   log.WithComponent("storage"),
	}, nil
}

// EnsureIndexes creates the secondary indexes on the hashed-key-phrase field:
// unique on pools, non-unique on transfers. Safe to call on every startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.pools().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hashed_key_phrase", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return apperr.New(apperr.MongoError, fmt.Errorf("pools index: %w", err))
	}

	_, err = s.transfers().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pool_hashed_key_phrase", Value: 1}},
	})
	if err != nil {
		return apperr.New(apperr.MongoError, fmt.Errorf("transfers index: %w", err))
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) pools() *mongo.Collection {
	return s.db.Collection(poolsCollection)
}

func (s *MongoStore) transfers() *mongo.Collection {
	return s.db.Collection(transfersCollection)
}

// hashKP derives the stored filter value from a plaintext key phrase.
func (s *MongoStore) hashKP(kp keyphrase.KeyPhrase) (string, error) {
	return s.hasher.Hash(kp)
}

// parseObjectID converts a client-supplied hex id, mapping malformed input to
// InvalidObjectId.
func parseObjectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, apperr.New(apperr.InvalidObjectId, err)
	}
	return oid, nil
}
