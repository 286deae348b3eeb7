package http

import (
	"fmt"
	"net/http"
	"time"

	"mysokha/internal/log"
)

const keepAliveInterval = 25 * time.Second

// handleEvents streams snapshot changes as Server-Sent Events. Each event
// names the collection that changed and carries the new snapshot version;
// pages react by re-fetching their partials. The subscriptions end with
// the request.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	expCh, stopExp := s.hub.ExpenseFeed().Subscribe()
	defer stopExp()
	tplCh, stopTpl := s.hub.TemplateFeed().Subscribe()
	defer stopTpl()

	// both channels hold the current snapshot; the page already shows it
	expVersion := (<-expCh).Version
	tplVersion := (<-tplCh).Version

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Event stream not supported by response writer", log.FieldError, err)
		return
	}

	s.metrics.streams.Add(1)
	defer s.metrics.streams.Add(-1)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	send := func(event string, version uint64) bool {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %d\n\n", event, version); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case snap, ok := <-expCh:
			if !ok {
				return
			}
			if snap.Version != expVersion {
				expVersion = snap.Version
				if !send(eventExpensesChanged, expVersion) {
					return
				}
			}
		case snap, ok := <-tplCh:
			if !ok {
				return
			}
			if snap.Version != tplVersion {
				tplVersion = snap.Version
				if !send(eventTemplatesChanged, tplVersion) {
					return
				}
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if rc.Flush() != nil {
				return
			}
		}
	}
}
