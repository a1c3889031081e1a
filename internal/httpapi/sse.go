package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveEvery is how many quiet ticks pass before a comment line is sent.
const keepAliveEvery = 15

// handleJobStream pushes the job list as server-sent events. A new event is
// written only when the list changed since the last one.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var last []byte
	quiet := 0
	push := func() error {
		payload, err := json.Marshal(s.queue.List())
		if err != nil {
			return err
		}
		if bytes.Equal(payload, last) {
			quiet++
			if quiet < keepAliveEvery {
				return nil
			}
			quiet = 0
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		} else {
			last, quiet = payload, 0
			_, err = fmt.Fprintf(w, "event: jobs\ndata: %s\n\n", payload)
		}
		if err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := push(); err != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := push(); err != nil {
				return
			}
		}
	}
}
