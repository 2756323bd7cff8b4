package server

import "net/http"

// handleEvents upgrades the request to a server-sent-events stream scoped to
// one device in one pool. The subscription lives until the client disconnects
// or the liveness probe evicts it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	kp, ok := keyPhraseFromRequest(w, r)
	if !ok {
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		respondBadArgs(w)
		return
	}

	// The pool must exist before a stream is handed out; a bad key phrase
	// would otherwise hold a subscription that can never receive anything.
	if _, err := s.store.GetPool(r.Context(), kp); err != nil {
		respondErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondReason(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	hashed, err := s.hasher.Hash(kp)
	if err != nil {
		respondErr(w, err)
		return
	}

	sub := s.broadcaster.Subscribe(deviceID, hashed)
	defer s.broadcaster.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-sub.Ch():
			if err := msg.WriteTo(w); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
