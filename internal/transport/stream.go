package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// serveStream forwards projection snapshots to the client as server-sent
// events, one full batch per event.
func serveStream[T any](w http.ResponseWriter, r *http.Request, name string, open Stream[T]) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, name)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots, cancel := open()
	defer cancel()

	logger.Debug("stream opened")

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("stream client gone")
			return
		case batch, ok := <-snapshots:
			if !ok {
				logger.Debug("stream source closed")
				return
			}

			data, err := json.Marshal(batch)
			if err != nil {
				logger.Error("marshal snapshot", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
