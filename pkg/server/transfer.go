package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ilingu/ilix-server/pkg/broadcast"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
)

func (s *Server) handleGetAllTransfers(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	deviceID := mux.Vars(r)["device_id"]
	if deviceID == "" {
		respondBadArgs(w)
		return
	}

	transfers, err := s.store.FindTransfers(r.Context(), kp, deviceID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, transfers)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		respondBadArgs(w)
		return
	}

	fileIDs, ok := s.uploadFiles(w, r, kp)
	if !ok {
		return
	}

	transfer, err := s.store.CreateTransfer(r.Context(), kp, from, to, fileIDs)
	if err != nil {
		s.cleanupBlobs(r, fileIDs)
		respondErr(w, err)
		return
	}

	s.publish([]string{transfer.To}, kp, broadcast.TransferEvent(transfer))
	respondData(w, transfer.ID)
}

func (s *Server) handleAddFilesToTransfer(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	transferID := mux.Vars(r)["transfer_id"]
	if transferID == "" {
		respondBadArgs(w)
		return
	}

	fileIDs, ok := s.uploadFiles(w, r, kp)
	if !ok {
		return
	}

	transfer, err := s.store.AddFilesToTransfer(r.Context(), fileIDs, transferID, kp)
	if err != nil {
		s.cleanupBlobs(r, fileIDs)
		respondErr(w, err)
		return
	}

	s.publish([]string{transfer.To}, kp, broadcast.TransferEvent(transfer))
	respondData(w, fileIDs)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	deviceID, transferID := vars["device_id"], vars["transfer_id"]
	if deviceID == "" || transferID == "" {
		respondBadArgs(w)
		return
	}

	fileIDs, err := s.store.DeleteTransfer(r.Context(), kp, deviceID, transferID)
	if err != nil {
		respondErr(w, err)
		return
	}

	// The transfer record is gone at this point; every blob delete is still
	// attempted, and any failure is surfaced as a partial success.
	if err := s.store.DeleteFiles(r.Context(), fileIDs); err != nil {
		s.logger.Error().Err(err).Str("transfer_id", transferID).Msg("blob cleanup incomplete")
		respondReason(w, http.StatusInternalServerError, "Transfer was deleted but some files were not deleted")
		return
	}
	respondOK(w)
}

// uploadFiles runs the shared multipart pipeline: parse all parts, then
// encrypt and store them. It writes the error response itself; callers must
// return when ok is false.
func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request, kp keyphrase.KeyPhrase) ([]string, bool) {
	files, err := readMultipartFiles(r)
	if errors.Is(err, errNoFiles) {
		respondReason(w, http.StatusBadRequest, "Error when parsing files")
		return nil, false
	}
	if err != nil {
		respondReason(w, http.StatusBadRequest, "Failed to parse file")
		return nil, false
	}

	fileIDs, err := s.store.AddFiles(r.Context(), files, kp)
	if err != nil {
		respondErr(w, err)
		return nil, false
	}
	return fileIDs, true
}

// cleanupBlobs removes just-stored blobs after a failed transfer mutation.
// Failures are logged; the response already carries the primary error.
func (s *Server) cleanupBlobs(r *http.Request, fileIDs []string) {
	if err := s.store.DeleteFiles(r.Context(), fileIDs); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clean up orphaned blobs")
	}
}
