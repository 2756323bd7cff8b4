package server

import (
	"encoding/json"
	"net/http"

	"github.com/ilingu/ilix-server/pkg/apperr"
)

// responsePayload is the envelope every JSON endpoint answers with. The data
// field, when present, is itself a JSON document serialized to a string.
type responsePayload struct {
	Success    bool   `json:"success"`
	StatusCode uint16 `json:"status_code"`
	Reason     string `json:"reason,omitempty"`
	Data       string `json:"data,omitempty"`
}

func writePayload(w http.ResponseWriter, payload responsePayload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(int(payload.StatusCode))
	_ = json.NewEncoder(w).Encode(payload)
}

// respondData answers 200 with data serialized into the envelope.
func respondData(w http.ResponseWriter, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		respondReason(w, http.StatusInternalServerError, "ParseError")
		return
	}
	writePayload(w, responsePayload{
		Success:    true,
		StatusCode: http.StatusOK,
		Data:       string(raw),
	})
}

// respondOK answers 200 with no data, for endpoints whose result is unit.
func respondOK(w http.ResponseWriter) {
	writePayload(w, responsePayload{
		Success:    true,
		StatusCode: http.StatusOK,
	})
}

// respondErr maps err's code to its HTTP status and reason.
func respondErr(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	respondReason(w, code.Status(), string(code))
}

// respondReason answers a failure with an explicit status and reason.
func respondReason(w http.ResponseWriter, status int, reason string) {
	writePayload(w, responsePayload{
		Success:    false,
		StatusCode: uint16(status),
		Reason:     reason,
	})
}

// respondBadArgs is the canonical 400 for missing or malformed inputs.
func respondBadArgs(w http.ResponseWriter) {
	respondReason(w, http.StatusBadRequest, "Empty Args")
}
