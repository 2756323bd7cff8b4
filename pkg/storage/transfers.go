package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/types"
)

// transferDoc is the stored form of a transfer; the _id stays an ObjectID in
// the database and becomes a hex string on the way out.
type transferDoc struct {
	ID                  bson.ObjectID `bson:"_id,omitempty"`
	PoolHashedKeyPhrase string        `bson:"pool_hashed_key_phrase"`
	From                string        `bson:"from"`
	To                  string        `bson:"to"`
	FilesID             []string      `bson:"files_id"`
}

func (d transferDoc) toTransfer() types.Transfer {
	return types.Transfer{
		ID:                  d.ID.Hex(),
		PoolHashedKeyPhrase: d.PoolHashedKeyPhrase,
		From:                d.From,
		To:                  d.To,
		FilesID:             d.FilesID,
	}
}

// FindTransfers returns every transfer in the pool addressed to deviceID.
// An empty result is not an error.
func (s *MongoStore) FindTransfers(ctx context.Context, kp keyphrase.KeyPhrase, deviceID string) ([]types.Transfer, error) {
	hashed, err := s.hashKP(kp)
	if err != nil {
		return nil, err
	}

	cursor, err := s.transfers().Find(ctx, bson.M{
		"pool_hashed_key_phrase": hashed,
		"to":                     deviceID,
	})
	if err != nil {
		return nil, apperr.New(apperr.MongoError, err)
	}

	var docs []transferDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.New(apperr.MongoError, err)
	}

	transfers := make([]types.Transfer, len(docs))
	for i, doc := range docs {
		transfers[i] = doc.toTransfer().Sanitized()
	}
	return transfers, nil
}

// CreateTransfer inserts a transfer carrying its first batch of files. Both
// endpoints must currently be members of the pool.
func (s *MongoStore) CreateTransfer(ctx context.Context, kp keyphrase.KeyPhrase, from, to string, fileIDs []string) (types.Transfer, error) {
	if len(fileIDs) == 0 {
		return types.Transfer{}, apperr.New(apperr.MongoError, fmt.Errorf("transfer must carry at least one file"))
	}

	pool, err := s.GetPool(ctx, kp)
	if err != nil {
		return types.Transfer{}, err
	}
	if !pool.HasDevice(from) || !pool.HasDevice(to) {
		return types.Transfer{}, apperr.New(apperr.NotInPool, nil)
	}

	hashed, err := s.hashKP(kp)
	if err != nil {
		return types.Transfer{}, err
	}

	doc := transferDoc{
		ID:                  bson.NewObjectID(),
		PoolHashedKeyPhrase: hashed,
		From:                from,
		To:                  to,
		FilesID:             fileIDs,
	}
	if _, err := s.transfers().InsertOne(ctx, doc); err != nil {
		return types.Transfer{}, apperr.New(apperr.MongoError, err)
	}
	return doc.toTransfer().Sanitized(), nil
}

// AddFilesToTransfer atomically appends fileIDs to an existing transfer and
// returns the post-image.
func (s *MongoStore) AddFilesToTransfer(ctx context.Context, fileIDs []string, transferID string, kp keyphrase.KeyPhrase) (types.Transfer, error) {
	oid, err := parseObjectID(transferID)
	if err != nil {
		return types.Transfer{}, err
	}
	hashed, err := s.hashKP(kp)
	if err != nil {
		return types.Transfer{}, err
	}

	var post transferDoc
	err = s.transfers().FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "pool_hashed_key_phrase": hashed},
		bson.M{"$addToSet": bson.M{"files_id": bson.M{"$each": fileIDs}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Transfer{}, apperr.New(apperr.TransferNotFound, nil)
	}
	if err != nil {
		return types.Transfer{}, apperr.New(apperr.MongoError, err)
	}

	// Consistency check: the post-image must reference every added id.
	transfer := post.toTransfer()
	for _, id := range fileIDs {
		if !transfer.ContainsFile(id) {
			return types.Transfer{}, apperr.New(apperr.MongoError, fmt.Errorf("post-image is missing file %s", id))
		}
	}
	return transfer.Sanitized(), nil
}

// RemoveTransferFile detaches one blob id from whichever transfer in the pool
// references it. A transfer emptied by the removal is deleted.
func (s *MongoStore) RemoveTransferFile(ctx context.Context, fileID string, kp keyphrase.KeyPhrase) error {
	hashed, err := s.hashKP(kp)
	if err != nil {
		return err
	}

	var post transferDoc
	err = s.transfers().FindOneAndUpdate(ctx,
		bson.M{"pool_hashed_key_phrase": hashed, "files_id": fileID},
		bson.M{"$pull": bson.M{"files_id": fileID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// No transfer in this pool references the file (anymore).
		return apperr.New(apperr.NotInTransfer, nil)
	}
	if err != nil {
		return apperr.New(apperr.MongoError, err)
	}

	if post.toTransfer().ContainsFile(fileID) {
		return apperr.New(apperr.NotInTransfer, nil)
	}

	if len(post.FilesID) == 0 {
		if _, err := s.transfers().DeleteOne(ctx, bson.M{"_id": post.ID}); err != nil {
			return apperr.New(apperr.MongoError, err)
		}
	}
	return nil
}

// DeleteTransfer removes the transfer matching all three criteria and returns
// the blob ids it referenced. Blob deletion is the caller's responsibility.
func (s *MongoStore) DeleteTransfer(ctx context.Context, kp keyphrase.KeyPhrase, toDeviceID, transferID string) ([]string, error) {
	oid, err := parseObjectID(transferID)
	if err != nil {
		return nil, err
	}
	hashed, err := s.hashKP(kp)
	if err != nil {
		return nil, err
	}

	var deleted transferDoc
	err = s.transfers().FindOneAndDelete(ctx, bson.M{
		"_id":                    oid,
		"pool_hashed_key_phrase": hashed,
		"to":                     toDeviceID,
	}).Decode(&deleted)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.New(apperr.TransferNotFound, nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.MongoError, err)
	}
	return deleted.FilesID, nil
}
