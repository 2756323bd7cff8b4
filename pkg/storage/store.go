package storage

import (
	"context"

	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/types"
)

// Store defines the interface for pool, transfer and blob persistence.
// Every operation that takes a key phrase filters by its hashed form; the
// plaintext never reaches the backing store.
type Store interface {
	// Pools
	GetPool(ctx context.Context, kp keyphrase.KeyPhrase) (types.Pool, error)
	CreatePool(ctx context.Context, name, deviceID, deviceName string) (keyphrase.KeyPhrase, error)
	JoinPool(ctx context.Context, kp keyphrase.KeyPhrase, deviceID, deviceName string) (types.Pool, error)
	LeavePool(ctx context.Context, kp keyphrase.KeyPhrase, deviceID string) (types.Pool, error)
	DeletePool(ctx context.Context, kp keyphrase.KeyPhrase) (types.Pool, error)

	// Transfers
	FindTransfers(ctx context.Context, kp keyphrase.KeyPhrase, deviceID string) ([]types.Transfer, error)
	CreateTransfer(ctx context.Context, kp keyphrase.KeyPhrase, from, to string, fileIDs []string) (types.Transfer, error)
	AddFilesToTransfer(ctx context.Context, fileIDs []string, transferID string, kp keyphrase.KeyPhrase) (types.Transfer, error)
	RemoveTransferFile(ctx context.Context, fileID string, kp keyphrase.KeyPhrase) error
	DeleteTransfer(ctx context.Context, kp keyphrase.KeyPhrase, toDeviceID, transferID string) ([]string, error)

	// Blobs
	GetFilesInfo(ctx context.Context, fileIDs []string) ([]types.FileInfo, error)
	GetFile(ctx context.Context, fileID string, kp keyphrase.KeyPhrase) (string, []byte, error)
	AddFiles(ctx context.Context, files []types.NamedFile, kp keyphrase.KeyPhrase) ([]string, error)
	DeleteFiles(ctx context.Context, fileIDs []string) error

	// Utility
	Close(ctx context.Context) error
}
