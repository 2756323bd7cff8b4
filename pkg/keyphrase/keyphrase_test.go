package keyphrase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ilingu/ilix-server/pkg/apperr"
)

func validKeyPhrase() string {
	words := make([]string, KeyPhraseLen)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, "-")
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid 20 words", input: validKeyPhrase(), wantErr: false},
		{name: "empty string", input: "", wantErr: true},
		{name: "too few words", input: "one-two-three", wantErr: true},
		{name: "too many words", input: validKeyPhrase() + "-extra", wantErr: true},
		{name: "empty word in the middle", input: strings.Replace(validKeyPhrase(), "word-word", "word--word", 1), wantErr: true},
		{name: "free text", input: "not valid kp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !apperr.HasCode(err, apperr.InvalidKeyPhrase) {
					t.Errorf("Parse() error code = %v, want InvalidKeyPhrase", apperr.CodeOf(err))
				}
				return
			}
			if string(kp) != tt.input {
				t.Errorf("Parse() = %q, want %q", kp, tt.input)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	dictPath := filepath.Join(t.TempDir(), "words.txt")
	words := "apple\nbanana\ncherry\ndate\nelderberry\nfig\ngrape\n"
	if err := os.WriteFile(dictPath, []byte(words), 0o600); err != nil {
		t.Fatal(err)
	}

	kp, err := Generate(dictPath, KeyPhraseLen)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := Parse(string(kp)); err != nil {
		t.Errorf("generated key phrase does not parse: %v", err)
	}

	dictionary := map[string]bool{}
	for _, w := range strings.Fields(words) {
		dictionary[w] = true
	}
	for _, w := range strings.Split(string(kp), "-") {
		if !dictionary[w] {
			t.Errorf("generated word %q is not in the dictionary", w)
		}
	}
}

func TestGenerateMissingDictionary(t *testing.T) {
	_, err := Generate(filepath.Join(t.TempDir(), "nope.txt"), KeyPhraseLen)
	if !apperr.HasCode(err, apperr.DictionaryNotFound) {
		t.Errorf("Generate() error code = %v, want DictionaryNotFound", apperr.CodeOf(err))
	}
}

func TestNewHasher(t *testing.T) {
	tests := []struct {
		name     string
		rounds   int
		salt     string
		wantCode apperr.Code
	}{
		{name: "valid", rounds: 5, salt: "pepper"},
		{name: "empty salt", rounds: 5, salt: "", wantCode: apperr.EnvVarNotFound},
		{name: "too few rounds", rounds: 4, salt: "pepper", wantCode: apperr.HashError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHasher(tt.rounds, tt.salt)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("NewHasher() error = %v", err)
				}
				return
			}
			if !apperr.HasCode(err, tt.wantCode) {
				t.Errorf("NewHasher() error code = %v, want %v", apperr.CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestHashDeterminism(t *testing.T) {
	kp := KeyPhrase(validKeyPhrase())

	h1, err := NewHasher(5, "salt")
	if err != nil {
		t.Fatal(err)
	}

	first, err := h1.Hash(kp)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	second, _ := h1.Hash(kp)
	if first != second {
		t.Error("same hasher and input produced different hashes")
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}

	// Different salt or round count must invalidate the hash.
	h2, _ := NewHasher(5, "other-salt")
	other, _ := h2.Hash(kp)
	if other == first {
		t.Error("different salt produced the same hash")
	}

	h3, _ := NewHasher(6, "salt")
	other, _ = h3.Hash(kp)
	if other == first {
		t.Error("different round count produced the same hash")
	}
}

func TestVerify(t *testing.T) {
	kp := validKeyPhrase()
	h, err := NewHasher(5, "salt")
	if err != nil {
		t.Fatal(err)
	}
	stored, err := h.Hash(KeyPhrase(kp))
	if err != nil {
		t.Fatal(err)
	}

	if !h.Verify(stored, kp) {
		t.Error("Verify() rejected the correct key phrase")
	}
	if h.Verify(stored, strings.Replace(kp, "word", "sword", 1)) {
		t.Error("Verify() accepted a different key phrase")
	}
	if h.Verify(stored, "not even a key phrase") {
		t.Error("Verify() accepted an unparsable candidate")
	}
}
