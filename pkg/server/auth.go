package server

import (
	"net/http"
	"unicode/utf8"

	"github.com/ilingu/ilix-server/pkg/keyphrase"
)

// keyPhraseFromRequest extracts and validates the plaintext key phrase from
// the raw Authorization header (no scheme prefix). It writes the 401 response
// itself; callers must return immediately when ok is false.
func keyPhraseFromRequest(w http.ResponseWriter, r *http.Request) (keyphrase.KeyPhrase, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		respondReason(w, http.StatusUnauthorized, "missing 'Authorization' header")
		return "", false
	}
	if !utf8.ValidString(header) {
		respondReason(w, http.StatusUnauthorized, "invalid 'Authorization' header")
		return "", false
	}

	kp, err := keyphrase.Parse(header)
	if err != nil {
		respondReason(w, http.StatusUnauthorized, "InvalidKeyPhrase")
		return "", false
	}
	return kp, true
}
