package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/crypto"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/metrics"
	"github.com/ilingu/ilix-server/pkg/types"
)

// fileDoc mirrors the metadata document GridFS keeps in <bucket>.files.
type fileDoc struct {
	ID         bson.ObjectID `bson:"_id"`
	Filename   string        `bson:"filename"`
	Length     int64         `bson:"length"`
	ChunkSize  int32         `bson:"chunkSize"`
	UploadDate time.Time     `bson:"uploadDate"`
}

func (d fileDoc) toFileInfo() types.FileInfo {
	return types.FileInfo{
		ID:         d.ID.Hex(),
		Filename:   d.Filename,
		Length:     d.Length,
		ChunkSize:  d.ChunkSize,
		UploadDate: d.UploadDate,
	}
}

// GetFilesInfo fans out one metadata read per id, preserving input order.
// Any missing id fails the whole call with FileNotFound.
func (s *MongoStore) GetFilesInfo(ctx context.Context, fileIDs []string) ([]types.FileInfo, error) {
	infos := make([]types.FileInfo, len(fileIDs))
	files := s.bucket.GetFilesCollection()

	var g errgroup.Group
	for i, id := range fileIDs {
		i, id := i, id
		g.Go(func() error {
			oid, err := parseObjectID(id)
			if err != nil {
				return err
			}
			var doc fileDoc
			err = files.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return apperr.New(apperr.FileNotFound, nil)
			}
			if err != nil {
				return apperr.New(apperr.MongoError, err)
			}
			infos[i] = doc.toFileInfo()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

// GetFile downloads and decrypts one blob, returning its original filename
// and plaintext.
func (s *MongoStore) GetFile(ctx context.Context, fileID string, kp keyphrase.KeyPhrase) (string, []byte, error) {
	oid, err := parseObjectID(fileID)
	if err != nil {
		return "", nil, err
	}

	stream, err := s.bucket.OpenDownloadStream(ctx, oid)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return "", nil, apperr.New(apperr.FileNotFound, nil)
	}
	if err != nil {
		return "", nil, apperr.New(apperr.MongoError, err)
	}
	defer stream.Close()

	filename := stream.GetFile().Name

	blob, err := io.ReadAll(stream)
	if err != nil {
		return "", nil, apperr.New(apperr.MongoError, err)
	}

	plaintext, err := crypto.Decrypt(string(kp), blob)
	if err != nil {
		return "", nil, err
	}
	return filename, plaintext, nil
}

// AddFiles encrypts every file in parallel, then uploads every ciphertext in
// parallel, returning blob ids in input order. A failure in either step
// aborts the call; the caller cleans up whatever partial state it observes.
func (s *MongoStore) AddFiles(ctx context.Context, files []types.NamedFile, kp keyphrase.KeyPhrase) ([]string, error) {
	ciphertexts := make([][]byte, len(files))

	var encg errgroup.Group
	for i, f := range files {
		i, f := i, f
		encg.Go(func() error {
			ct, err := crypto.Encrypt(string(kp), f.Data)
			if err != nil {
				return err
			}
			ciphertexts[i] = ct
			return nil
		})
	}
	if err := encg.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(files))
	var upg errgroup.Group
	for i, f := range files {
		i, f := i, f
		upg.Go(func() error {
			oid, err := s.bucket.UploadFromStream(ctx, f.Filename, bytes.NewReader(ciphertexts[i]))
			if err != nil {
				return apperr.New(apperr.MongoError, err)
			}
			ids[i] = oid.Hex()
			metrics.BlobsUploadedTotal.Inc()
			return nil
		})
	}
	if err := upg.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteFiles fans out one delete per blob. Every deletion is attempted even
// when some fail; the first error observed is returned.
func (s *MongoStore) DeleteFiles(ctx context.Context, fileIDs []string) error {
	var g errgroup.Group
	for _, id := range fileIDs {
		id := id
		g.Go(func() error {
			oid, err := parseObjectID(id)
			if err != nil {
				return err
			}
			err = s.bucket.Delete(ctx, oid)
			if errors.Is(err, mongo.ErrFileNotFound) {
				return apperr.New(apperr.FileNotFound, nil)
			}
			if err != nil {
				return apperr.New(apperr.MongoError, err)
			}
			metrics.BlobsDeletedTotal.Inc()
			return nil
		})
	}
	return g.Wait()
}
