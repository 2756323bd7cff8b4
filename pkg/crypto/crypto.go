package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"

	"github.com/ilingu/ilix-server/pkg/apperr"
)

// Hash returns the SHA3-256 digest of s as 64 lowercase hex characters.
func Hash(s string) string {
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// blobKey derives the 32-byte AEAD key for a pool: the first 32 bytes of the
// hex digest of the key phrase. The key material is the ASCII hex characters
// themselves, which keeps the derivation compatible with existing blobs.
func blobKey(keyPhrase string) []byte {
	return []byte(Hash(keyPhrase)[:chacha20poly1305.KeySize])
}

// Encrypt seals plaintext with XChaCha20-Poly1305 under a key derived from
// the pool key phrase. The returned blob is nonce || ciphertext, with a fresh
// random 24-byte nonce per call.
func Encrypt(keyPhrase string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(blobKey(keyPhrase))
	if err != nil {
		return nil, apperr.New(apperr.EncryptionError, err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperr.New(apperr.EncryptionError, err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. It fails with DecryptionError on truncated input
// or authentication-tag mismatch (the usual symptom of a wrong key phrase).
func Decrypt(keyPhrase string, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, apperr.New(apperr.DecryptionError, fmt.Errorf("blob shorter than nonce: %d bytes", len(blob)))
	}

	aead, err := chacha20poly1305.NewX(blobKey(keyPhrase))
	if err != nil {
		return nil, apperr.New(apperr.DecryptionError, err)
	}

	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.New(apperr.DecryptionError, err)
	}
	return plaintext, nil
}
