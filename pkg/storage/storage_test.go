package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/types"
)

// newTestStore connects to the MongoDB instance named by MONGODB_URI. Tests
// in this file are integration tests and are skipped without one.
func newTestStore(t *testing.T) (*MongoStore, context.Context) {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping storage integration tests")
	}

	dictPath := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(dictPath, []byte("apple banana cherry date elderberry fig grape kiwi lemon mango\n"), 0o600))

	hasher, err := keyphrase.NewHasher(5, "storage-test-salt")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	store, err := Connect(ctx, Options{URI: uri, Hasher: hasher, DictionaryPath: dictPath})
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndexes(ctx))
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, ctx
}

// createTestPool makes a fresh pool and returns its plaintext key phrase.
func createTestPool(t *testing.T, store *MongoStore, ctx context.Context) keyphrase.KeyPhrase {
	t.Helper()
	kp, err := store.CreatePool(ctx, "test-pool", "ilingu", "ilingu1")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = store.DeletePool(context.Background(), kp) })
	return kp
}

func TestPoolLifecycle(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)

	pool, err := store.GetPool(ctx, kp)
	require.NoError(t, err)
	assert.Equal(t, "test-pool", pool.PoolName)
	assert.Equal(t, []string{"ilingu"}, pool.DevicesID)
	assert.Equal(t, "ilingu1", pool.DevicesIDToName["ilingu"])
	assert.Empty(t, pool.HashedKeyPhrase, "hashed key phrase must never leave the store")

	// Joining adds the device exactly once.
	pool, err = store.JoinPool(ctx, kp, "bliwox", "bliwox1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ilingu", "bliwox"}, pool.DevicesID)
	assert.Len(t, pool.DevicesIDToName, 2)

	_, err = store.JoinPool(ctx, kp, "bliwox", "bliwox1")
	assert.True(t, apperr.HasCode(err, apperr.AlreadyInPool), "second join = %v", err)

	// Leaving removes it again; leaving twice conflicts.
	pool, err = store.LeavePool(ctx, kp, "bliwox")
	require.NoError(t, err)
	assert.Equal(t, []string{"ilingu"}, pool.DevicesID)

	_, err = store.LeavePool(ctx, kp, "bliwox")
	assert.True(t, apperr.HasCode(err, apperr.NotInPool), "second leave = %v", err)
}

func TestGetPoolUnknownKeyPhrase(t *testing.T) {
	store, ctx := newTestStore(t)

	kp, err := keyphrase.Generate(store.dictPath, keyphrase.KeyPhraseLen)
	require.NoError(t, err)

	_, err = store.GetPool(ctx, kp)
	assert.True(t, apperr.HasCode(err, apperr.PoolNotFound), "got %v", err)
}

func TestBlobRoundTrip(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)

	content := bytes.Repeat([]byte("ilix blob content "), 100)
	ids, err := store.AddFiles(ctx, []types.NamedFile{
		{Filename: "test1.jpg", Data: content},
		{Filename: "test2.txt", Data: []byte("small")},
	}, kp)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	t.Cleanup(func() { _ = store.DeleteFiles(context.Background(), ids) })

	infos, err := store.GetFilesInfo(ctx, ids)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "test1.jpg", infos[0].Filename)
	assert.Equal(t, "test2.txt", infos[1].Filename)
	assert.Greater(t, infos[0].Length, int64(len(content)), "stored blob carries nonce and tag overhead")

	filename, plaintext, err := store.GetFile(ctx, ids[0], kp)
	require.NoError(t, err)
	assert.Equal(t, "test1.jpg", filename)
	assert.Equal(t, content, plaintext)

	// A different key phrase cannot decrypt the blob.
	otherKP, err := keyphrase.Generate(store.dictPath, keyphrase.KeyPhraseLen)
	require.NoError(t, err)
	_, _, err = store.GetFile(ctx, ids[0], otherKP)
	assert.True(t, apperr.HasCode(err, apperr.DecryptionError), "got %v", err)
}

func TestTransferLifecycle(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)
	_, err := store.JoinPool(ctx, kp, "bliwox", "bliwox1")
	require.NoError(t, err)

	ids, err := store.AddFiles(ctx, []types.NamedFile{
		{Filename: "a.txt", Data: []byte("aaa")},
		{Filename: "b.txt", Data: []byte("bbb")},
	}, kp)
	require.NoError(t, err)

	transfer, err := store.CreateTransfer(ctx, kp, "bliwox", "ilingu", ids)
	require.NoError(t, err)
	assert.Equal(t, "bliwox", transfer.From)
	assert.Equal(t, "ilingu", transfer.To)
	assert.Len(t, transfer.FilesID, 2)
	assert.Empty(t, transfer.PoolHashedKeyPhrase)

	found, err := store.FindTransfers(ctx, kp, "ilingu")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, transfer.ID, found[0].ID)

	// Attach a third file.
	moreIDs, err := store.AddFiles(ctx, []types.NamedFile{{Filename: "c.txt", Data: []byte("ccc")}}, kp)
	require.NoError(t, err)
	post, err := store.AddFilesToTransfer(ctx, moreIDs, transfer.ID, kp)
	require.NoError(t, err)
	assert.Len(t, post.FilesID, 3)

	// Deleting the transfer hands back all blob ids for cleanup.
	deletedIDs, err := store.DeleteTransfer(ctx, kp, "ilingu", transfer.ID)
	require.NoError(t, err)
	assert.Len(t, deletedIDs, 3)
	require.NoError(t, store.DeleteFiles(ctx, deletedIDs))

	_, err = store.DeleteTransfer(ctx, kp, "ilingu", transfer.ID)
	assert.True(t, apperr.HasCode(err, apperr.TransferNotFound), "got %v", err)
}

func TestCreateTransferValidation(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)

	_, err := store.CreateTransfer(ctx, kp, "ilingu", "ilingu", nil)
	assert.Error(t, err, "a transfer must carry at least one file")

	_, err = store.CreateTransfer(ctx, kp, "ghost", "ilingu", []string{"some-id"})
	assert.True(t, apperr.HasCode(err, apperr.NotInPool), "got %v", err)
}

func TestRemoveTransferFileIdempotence(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)

	ids, err := store.AddFiles(ctx, []types.NamedFile{{Filename: "only.txt", Data: []byte("x")}}, kp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DeleteFiles(context.Background(), ids) })

	_, err = store.CreateTransfer(ctx, kp, "ilingu", "ilingu", ids)
	require.NoError(t, err)

	require.NoError(t, store.RemoveTransferFile(ctx, ids[0], kp))

	// The emptied transfer is gone with its last file, so a second removal
	// finds nothing.
	err = store.RemoveTransferFile(ctx, ids[0], kp)
	assert.True(t, apperr.HasCode(err, apperr.NotInTransfer), "got %v", err)

	found, err := store.FindTransfers(ctx, kp, "ilingu")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLeavePoolCascade(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)
	_, err := store.JoinPool(ctx, kp, "bliwox", "bliwox1")
	require.NoError(t, err)

	ids, err := store.AddFiles(ctx, []types.NamedFile{{Filename: "doc.pdf", Data: []byte("pdf")}}, kp)
	require.NoError(t, err)
	_, err = store.CreateTransfer(ctx, kp, "bliwox", "ilingu", ids)
	require.NoError(t, err)

	// The recipient leaving takes its inbound transfers and their blobs along.
	_, err = store.LeavePool(ctx, kp, "ilingu")
	require.NoError(t, err)

	found, err := store.FindTransfers(ctx, kp, "ilingu")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = store.GetFilesInfo(ctx, ids)
	assert.True(t, apperr.HasCode(err, apperr.FileNotFound), "got %v", err)
}

func TestDeletePoolCascade(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)

	ids, err := store.AddFiles(ctx, []types.NamedFile{{Filename: "x.bin", Data: []byte{1, 2, 3}}}, kp)
	require.NoError(t, err)
	_, err = store.CreateTransfer(ctx, kp, "ilingu", "ilingu", ids)
	require.NoError(t, err)

	pool, err := store.DeletePool(ctx, kp)
	require.NoError(t, err)
	assert.Equal(t, []string{"ilingu"}, pool.DevicesID)

	_, err = store.GetPool(ctx, kp)
	assert.True(t, apperr.HasCode(err, apperr.PoolNotFound), "got %v", err)

	found, err := store.FindTransfers(ctx, kp, "ilingu")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = store.GetFilesInfo(ctx, ids)
	assert.True(t, apperr.HasCode(err, apperr.FileNotFound), "got %v", err)
}

func TestLastMemberLeavingDestroysPool(t *testing.T) {
	store, ctx := newTestStore(t)
	kp := createTestPool(t, store, ctx)

	_, err := store.LeavePool(ctx, kp, "ilingu")
	require.NoError(t, err)

	_, err = store.GetPool(ctx, kp)
	assert.True(t, apperr.HasCode(err, apperr.PoolNotFound), "got %v", err)
}
