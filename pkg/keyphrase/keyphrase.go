package keyphrase

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/config"
	"github.com/ilingu/ilix-server/pkg/crypto"
)

// KeyPhraseLen is the number of dictionary words in a production key phrase.
// With a ~178k word dictionary this gives on the order of 1e105 possibilities.
const KeyPhraseLen = 20

// KeyPhrase is a validated plaintext key phrase. It is simultaneously the
// pool identifier, the authentication credential and the seed of the blob
// encryption key, and must never be persisted.
type KeyPhrase string

// Parse validates s as a key phrase: splitting on '-' must yield exactly
// KeyPhraseLen non-empty words.
func Parse(s string) (KeyPhrase, error) {
	words := strings.Split(s, "-")
	if len(words) != KeyPhraseLen {
		return "", apperr.New(apperr.InvalidKeyPhrase, nil)
	}
	for _, w := range words {
		if w == "" {
			return "", apperr.New(apperr.InvalidKeyPhrase, nil)
		}
	}
	return KeyPhrase(s), nil
}

func (kp KeyPhrase) String() string {
	return string(kp)
}

// Generate draws n words uniformly from the dictionary file with a
// cryptographic RNG and joins them with '-'.
func Generate(dictionaryPath string, n int) (KeyPhrase, error) {
	raw, err := os.ReadFile(dictionaryPath)
	if err != nil {
		return "", apperr.New(apperr.DictionaryNotFound, err)
	}

	words := strings.Fields(string(raw))
	if len(words) == 0 {
		return "", apperr.New(apperr.DictionaryNotFound, fmt.Errorf("dictionary %s is empty", dictionaryPath))
	}

	picked := make([]string, n)
	max := big.NewInt(int64(len(words)))
	for i := range picked {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", apperr.New(apperr.HashError, err)
		}
		picked[i] = words[idx.Int64()]
	}
	return KeyPhrase(strings.Join(picked, "-")), nil
}

// Hasher derives stored hashes from plaintext key phrases. Rounds and Salt
// are process secrets: changing either invalidates every existing pool.
type Hasher struct {
	Rounds int
	Salt   string
}

// NewHasher validates the round count and salt taken from configuration.
func NewHasher(rounds int, salt string) (Hasher, error) {
	if salt == "" {
		return Hasher{}, apperr.New(apperr.EnvVarNotFound, fmt.Errorf("empty salt"))
	}
	if rounds < config.MinHashRounds {
		return Hasher{}, apperr.New(apperr.HashError, fmt.Errorf("hash round %d not safe enough", rounds))
	}
	return Hasher{Rounds: rounds, Salt: salt}, nil
}

// Hash computes the stored form of kp: the salted input is digested
// Rounds times, re-hashing the hex encoding of each round.
func (h Hasher) Hash(kp KeyPhrase) (string, error) {
	if h.Rounds < config.MinHashRounds {
		return "", apperr.New(apperr.HashError, fmt.Errorf("hash round %d not safe enough", h.Rounds))
	}
	result := h.Salt + string(kp)
	for i := 0; i < h.Rounds; i++ {
		result = crypto.Hash(result)
	}
	return result, nil
}

// Verify parses and hashes candidate and compares it against storedHash in
// constant time.
func (h Hasher) Verify(storedHash, candidate string) bool {
	kp, err := Parse(candidate)
	if err != nil {
		return false
	}
	hashed, err := h.Hash(kp)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashed), []byte(storedHash)) == 1
}
