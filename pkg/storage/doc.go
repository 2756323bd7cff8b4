/*
Package storage persists pools, transfers and encrypted file blobs in MongoDB.

The Store interface exposes every persistence operation of the broker; the
MongoDB implementation backs it with two collections and a GridFS bucket, all
in the "ilix" database:

	devices_pools      one document per pool, unique index on the hashed
	                   key phrase
	files_transfers    one document per transfer, indexed by pool
	ilix_fs            GridFS bucket holding nonce||ciphertext blobs

Every operation filters by the hashed form of the caller's key phrase,
computed on entry; the plaintext never reaches the database. Pool and
transfer state transitions ride on single find-and-update / find-and-delete
operators, so each transition is document-atomic. Cross-document cascades
(leave-pool, delete-pool) are not transactional: they fan out concurrently
and a later operation is expected to discover and continue any cleanup a
crash interrupted.

Blobs are encrypted before upload and decrypted after download with a key
derived from the pool's key phrase, so a blob is only readable by whoever
holds the key phrase of the pool it was uploaded under.
*/
package storage
