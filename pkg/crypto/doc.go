/*
Package crypto provides the hashing and blob-encryption primitives: SHA3-256
hex digests and XChaCha20-Poly1305 AEAD keyed from a pool's key phrase.

Encrypted blobs are laid out as nonce || ciphertext with a fresh random
24-byte nonce per encryption. The AEAD key is the first 32 bytes of the hex
digest of the key phrase; the hex characters themselves are the key material,
which is a fixed property of the stored blob format.
*/
package crypto
