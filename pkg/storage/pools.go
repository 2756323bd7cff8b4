package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/types"
)

// GetPool finds the caller's pool by hashed key phrase.
func (s *MongoStore) GetPool(ctx context.Context, kp keyphrase.KeyPhrase) (types.Pool, error) {
	hashed, err := s.hashKP(kp)
	if err != nil {
		return types.Pool{}, err
	}

	var pool types.Pool
	err = s.pools().FindOne(ctx, bson.M{"hashed_key_phrase": hashed}).Decode(&pool)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Pool{}, apperr.New(apperr.PoolNotFound, nil)
	}
	if err != nil {
		return types.Pool{}, apperr.New(apperr.MongoError, err)
	}
	return pool.Sanitized(), nil
}

// CreatePool generates a fresh key phrase and inserts a pool with the
// creating device as its only member. The plaintext key phrase is returned to
// the caller and never stored.
func (s *MongoStore) CreatePool(ctx context.Context, name, deviceID, deviceName string) (keyphrase.KeyPhrase, error) {
	kp, err := keyphrase.Generate(s.dictPath, keyphrase.KeyPhraseLen)
	if err != nil {
		return "", err
	}
	hashed, err := s.hashKP(kp)
	if err != nil {
		return "", err
	}

	pool := types.Pool{
		PoolName:        name,
		DevicesID:       []string{deviceID},
		DevicesIDToName: map[string]string{deviceID: deviceName},
		HashedKeyPhrase: hashed,
	}
	if _, err := s.pools().InsertOne(ctx, pool); err != nil {
		// A duplicate key here means two pools drew the same key phrase,
		// which the unique index turns into an insert error.
		return "", apperr.New(apperr.MongoError, err)
	}
	return kp, nil
}

// JoinPool atomically adds a device to the pool. The update runs against the
// pre-image so a repeated join is detected as AlreadyInPool.
func (s *MongoStore) JoinPool(ctx context.Context, kp keyphrase.KeyPhrase, deviceID, deviceName string) (types.Pool, error) {
	hashed, err := s.hashKP(kp)
	if err != nil {
		return types.Pool{}, err
	}

	update := bson.M{
		"$addToSet": bson.M{"devices_id": deviceID},
		"$set":      bson.M{"devices_id_to_name." + deviceID: deviceName},
	}

	var pre types.Pool
	err = s.pools().FindOneAndUpdate(ctx,
		bson.M{"hashed_key_phrase": hashed},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&pre)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Pool{}, apperr.New(apperr.PoolNotFound, nil)
	}
	if err != nil {
		return types.Pool{}, apperr.New(apperr.MongoError, err)
	}

	if pre.HasDevice(deviceID) {
		return types.Pool{}, apperr.New(apperr.AlreadyInPool, nil)
	}

	// Build the post-image from the pre-image instead of re-reading.
	post := pre
	post.DevicesID = append(append([]string{}, pre.DevicesID...), deviceID)
	post.DevicesIDToName = make(map[string]string, len(pre.DevicesIDToName)+1)
	for id, n := range pre.DevicesIDToName {
		post.DevicesIDToName[id] = n
	}
	post.DevicesIDToName[deviceID] = deviceName
	return post.Sanitized(), nil
}

// LeavePool removes a device from the pool, cascading away every transfer
// addressed to it (and those transfers' blobs) first. When the last member
// leaves, the pool itself is destroyed.
//
// The cascade runs before the membership update; a transfer created
// concurrently by the leaving device can slip through. Accepted: the next
// membership-level operation discovers and continues cleanup.
func (s *MongoStore) LeavePool(ctx context.Context, kp keyphrase.KeyPhrase, deviceID string) (types.Pool, error) {
	hashed, err := s.hashKP(kp)
	if err != nil {
		return types.Pool{}, err
	}

	if err := s.deleteTransfersTo(ctx, hashed, deviceID); err != nil {
		return types.Pool{}, err
	}

	var pre types.Pool
	err = s.pools().FindOneAndUpdate(ctx,
		bson.M{"hashed_key_phrase": hashed},
		bson.M{
			"$pull":  bson.M{"devices_id": deviceID},
			"$unset": bson.M{"devices_id_to_name." + deviceID: ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&pre)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Pool{}, apperr.New(apperr.PoolNotFound, nil)
	}
	if err != nil {
		return types.Pool{}, apperr.New(apperr.MongoError, err)
	}

	if _, named := pre.DevicesIDToName[deviceID]; !pre.HasDevice(deviceID) || !named {
		return types.Pool{}, apperr.New(apperr.NotInPool, nil)
	}

	if len(pre.DevicesID) == 1 {
		// Last member left: destroy the pool. The document may already be
		// gone, so the failure is deliberately ignored.
		if _, err := s.DeletePool(ctx, kp); err != nil {
			s.logger.Warn().Err(err).Msg("delete of emptied pool failed")
		}
	}

	post := pre
	post.DevicesID = make([]string, 0, len(pre.DevicesID)-1)
	for _, id := range pre.DevicesID {
		if id != deviceID {
			post.DevicesID = append(post.DevicesID, id)
		}
	}
	post.DevicesIDToName = make(map[string]string, len(pre.DevicesIDToName)-1)
	for id, n := range pre.DevicesIDToName {
		if id != deviceID {
			post.DevicesIDToName[id] = n
		}
	}
	return post.Sanitized(), nil
}

// DeletePool destroys the pool along with every transfer addressed to any of
// its members and all their blobs.
func (s *MongoStore) DeletePool(ctx context.Context, kp keyphrase.KeyPhrase) (types.Pool, error) {
	hashed, err := s.hashKP(kp)
	if err != nil {
		return types.Pool{}, err
	}

	var pool types.Pool
	err = s.pools().FindOne(ctx, bson.M{"hashed_key_phrase": hashed}).Decode(&pool)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Pool{}, apperr.New(apperr.PoolNotFound, nil)
	}
	if err != nil {
		return types.Pool{}, apperr.New(apperr.MongoError, err)
	}

	var g errgroup.Group
	for _, deviceID := range pool.DevicesID {
		deviceID := deviceID
		g.Go(func() error {
			return s.deleteTransfersTo(ctx, hashed, deviceID)
		})
	}
	if err := g.Wait(); err != nil {
		return types.Pool{}, err
	}

	err = s.pools().FindOneAndDelete(ctx, bson.M{"hashed_key_phrase": hashed}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Pool{}, apperr.New(apperr.PoolNotFound, nil)
	}
	if err != nil {
		return types.Pool{}, apperr.New(apperr.MongoError, err)
	}
	return pool.Sanitized(), nil
}

// deleteTransfersTo removes every transfer in the pool addressed to deviceID,
// together with the blobs each one references. Transfers are processed
// concurrently; the first failure aborts the whole cascade.
func (s *MongoStore) deleteTransfersTo(ctx context.Context, hashedKP, deviceID string) error {
	cursor, err := s.transfers().Find(ctx, bson.M{
		"pool_hashed_key_phrase": hashedKP,
		"to":                     deviceID,
	})
	if err != nil {
		return apperr.New(apperr.MongoError, err)
	}

	var docs []transferDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return apperr.New(apperr.MongoError, err)
	}

	var g errgroup.Group
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := s.DeleteFiles(ctx, doc.FilesID); err != nil {
				return apperr.New(apperr.MongoError, fmt.Errorf("blobs of transfer %s: %w", doc.ID.Hex(), err))
			}
			if _, err := s.transfers().DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
				return apperr.New(apperr.MongoError, fmt.Errorf("transfer %s: %w", doc.ID.Hex(), err))
			}
			return nil
		})
	}
	return g.Wait()
}
