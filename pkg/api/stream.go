package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/httpx"
)

const streamBuffer = 64

var keepAliveInterval = 15 * time.Second

// streamEvents serves the caller's ledger events as Server-Sent Events. A
// Last-Event-ID header or ?after= replays persisted events with a higher
// sequence before switching to live delivery.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	wallet, ok := caller(w, r)
	if !ok {
		return
	}
	if s.cfg.Bus == nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable", "Event stream is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal Server Error", "Streaming unsupported")
		return
	}

	after, replay, err := resumePoint(r)
	if err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}

	// Subscribe before reading history so nothing falls between the two.
	live, cancel := s.cfg.Bus.Subscribe(streamBuffer, func(e events.Event) bool {
		return e.Concerns(wallet)
	})
	defer cancel()

	var backlog []events.Event
	if replay && s.cfg.History != nil {
		past, err := s.cfg.History.ListConcerning(r.Context(), wallet, after)
		if err != nil {
			writeError(w, err)
			return
		}
		backlog = past
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	last := after
	for _, e := range backlog {
		if err := writeSSE(w, e); err != nil {
			return
		}
		last = e.Sequence
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-live:
			if !open {
				return
			}
			if e.Sequence <= last && replay {
				continue
			}
			if err := writeSSE(w, e); err != nil {
				s.logger.Debug("event stream closed", "wallet", wallet.Hex(), "error", err)
				return
			}
			last = e.Sequence
			flusher.Flush()
		}
	}
}

func resumePoint(r *http.Request) (uint64, bool, error) {
	raw := r.Header.Get("Last-Event-ID")
	if q := r.URL.Query().Get("after"); q != "" {
		raw = q
	}
	if raw == "" {
		return 0, false, nil
	}
	after, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid resume sequence %q", raw)
	}
	return after, true, nil
}

func writeSSE(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Sequence, e.Name, data)
	return err
}
