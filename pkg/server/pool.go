package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ilingu/ilix-server/pkg/broadcast"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
)

// maxNameLen bounds pool and device names.
const maxNameLen = 50

type newPoolPayload struct {
	Name       string `json:"name"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type joinPoolPayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type leavePoolPayload struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) handleNewPool(w http.ResponseWriter, r *http.Request) {
	var payload newPoolPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondBadArgs(w)
		return
	}
	if payload.Name == "" || payload.DeviceID == "" || payload.DeviceName == "" ||
		len(payload.Name) > maxNameLen || len(payload.DeviceName) > maxNameLen {
		respondBadArgs(w)
		return
	}

	kp, err := s.store.CreatePool(r.Context(), payload.Name, payload.DeviceID, payload.DeviceName)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, string(kp))
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}

	pool, err := s.store.GetPool(r.Context(), kp)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, pool)
}

func (s *Server) handleJoinPool(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}

	var payload joinPoolPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondBadArgs(w)
		return
	}
	if payload.DeviceID == "" || payload.DeviceName == "" || len(payload.DeviceName) > maxNameLen {
		respondBadArgs(w)
		return
	}

	pool, err := s.store.JoinPool(r.Context(), kp, payload.DeviceID, payload.DeviceName)
	if err != nil {
		respondErr(w, err)
		return
	}

	s.publish(pool.DevicesID, kp, broadcast.PoolEvent(pool))
	respondData(w, pool)
}

func (s *Server) handleLeavePool(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}

	var payload leavePoolPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondBadArgs(w)
		return
	}
	if payload.DeviceID == "" {
		respondBadArgs(w)
		return
	}

	pool, err := s.store.LeavePool(r.Context(), kp, payload.DeviceID)
	if err != nil {
		respondErr(w, err)
		return
	}

	// Post-image membership; empty when the pool was destroyed with the last
	// leaver, in which case there is nobody left to notify.
	if len(pool.DevicesID) > 0 {
		s.publish(pool.DevicesID, kp, broadcast.PoolEvent(pool))
	}
	respondOK(w)
}

func (s *Server) handleDeletePool(w http.ResponseWriter, r *http.Request) {
	kp, err := keyphrase.Parse(mux.Vars(r)["key_phrase"])
	if err != nil {
		respondReason(w, http.StatusUnauthorized, "InvalidKeyPhrase")
		return
	}

	pool, err := s.store.DeletePool(r.Context(), kp)
	if err != nil {
		respondErr(w, err)
		return
	}

	// Notify the pre-image membership that their pool is gone.
	s.publish(pool.DevicesID, kp, broadcast.LogoutEvent())
	respondOK(w)
}
