package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEChunk writes an unnamed event; clients receive it as "message".
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload any) {
	writeSSE(w, flusher, "", payload)
}

// SendSSEEvent writes a named event so EventSource clients can subscribe to it directly.
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	writeSSE(w, flusher, event, payload)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal sse payload", "event", event, "error", err)
		return
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			slog.Debug("failed to write sse event", "event", event, "error", err)
			return
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		slog.Debug("failed to write sse payload", "event", event, "error", err)
		return
	}
	flusher.Flush()
}
