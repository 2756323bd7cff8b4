package types

import "time"

// Pool is a set of devices sharing one key phrase. The hashed key phrase is
// the pool's only identifier; it is stored but cleared on every value that
// leaves the server.
type Pool struct {
	PoolName        string            `json:"pool_name" bson:"pool_name"`
	DevicesID       []string          `json:"devices_id" bson:"devices_id"`
	DevicesIDToName map[string]string `json:"devices_id_to_name" bson:"devices_id_to_name"`
	HashedKeyPhrase string            `json:"hashed_key_phrase" bson:"hashed_key_phrase"`
}

// Sanitized returns a copy with the hashed key phrase cleared.
func (p Pool) Sanitized() Pool {
	p.HashedKeyPhrase = ""
	return p
}

// HasDevice reports whether deviceID is a member of the pool.
func (p Pool) HasDevice(deviceID string) bool {
	for _, id := range p.DevicesID {
		if id == deviceID {
			return true
		}
	}
	return false
}

// Transfer is a directed container of blob ids from one pool device to
// another.
type Transfer struct {
	ID                  string   `json:"_id" bson:"_id,omitempty"`
	PoolHashedKeyPhrase string   `json:"pool_hashed_key_phrase" bson:"pool_hashed_key_phrase"`
	From                string   `json:"from" bson:"from"`
	To                  string   `json:"to" bson:"to"`
	FilesID             []string `json:"files_id" bson:"files_id"`
}

// Sanitized returns a copy with the pool hashed key phrase cleared.
func (t Transfer) Sanitized() Transfer {
	t.PoolHashedKeyPhrase = ""
	return t
}

// ContainsFile reports whether fileID is referenced by the transfer.
func (t Transfer) ContainsFile(fileID string) bool {
	for _, id := range t.FilesID {
		if id == fileID {
			return true
		}
	}
	return false
}

// FileInfo is the metadata of a stored blob, as recorded by the chunked
// bucket. Length and ChunkSize describe the encrypted payload, not the
// plaintext.
type FileInfo struct {
	ID         string    `json:"_id" bson:"_id"`
	Filename   string    `json:"filename" bson:"filename"`
	Length     int64     `json:"length" bson:"length"`
	UploadDate time.Time `json:"uploadDate" bson:"uploadDate"`
	ChunkSize  int32     `json:"chunkSize" bson:"chunkSize"`
}

// NamedFile pairs a filename with plaintext content for upload.
type NamedFile struct {
	Filename string
	Data     []byte
}
