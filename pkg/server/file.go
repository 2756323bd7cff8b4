package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ilingu/ilix-server/pkg/apperr"
)

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	fileID := mux.Vars(r)["file_id"]
	if fileID == "" {
		respondBadArgs(w)
		return
	}

	filename, plaintext, err := s.store.GetFile(r.Context(), fileID, kp)
	if err != nil {
		respondErr(w, err)
		return
	}

	// Spool the plaintext through a scoped temp file so net/http serves it
	// with range and content-type support; the file never outlives the
	// request.
	filename = filepath.Base(filename)
	if err := os.MkdirAll(s.tmpDir, 0o755); err != nil {
		respondReason(w, http.StatusInternalServerError, "Couldn't send file")
		return
	}
	path := filepath.Join(s.tmpDir, fmt.Sprintf("%s-%s", uuid.New(), filename))
	if err := os.WriteFile(path, plaintext, 0o600); err != nil {
		respondReason(w, http.StatusInternalServerError, "Couldn't send file")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	fileID := mux.Vars(r)["file_id"]
	if fileID == "" {
		respondBadArgs(w)
		return
	}

	// Detach first. A blob no transfer references (already pulled, or its
	// transfer already deleted) is still deletable; any other detach failure
	// means the blob must stay.
	if err := s.store.RemoveTransferFile(r.Context(), fileID, kp); err != nil {
		code := apperr.CodeOf(err)
		if code != apperr.NotInTransfer && code != apperr.TransferNotFound {
			respondReason(w, http.StatusConflict, string(code))
			return
		}
	}

	if err := s.store.DeleteFiles(r.Context(), []string{fileID}); err != nil {
		respondErr(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleGetFilesInfo(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("files_ids")
	var fileIDs []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			fileIDs = append(fileIDs, id)
		}
	}
	if len(fileIDs) == 0 {
		respondBadArgs(w)
		return
	}

	infos, err := s.store.GetFilesInfo(r.Context(), fileIDs)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, infos)
}
