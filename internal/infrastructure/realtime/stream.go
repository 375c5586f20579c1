package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EventConnected is the first frame on every stream. It carries the channel id
// a client needs to authenticate later.
const EventConnected = "connected"

// DefaultHeartbeat keeps idle proxies from closing the stream.
const DefaultHeartbeat = 15 * time.Second

var errStreamingUnsupported = errors.New("realtime: response writer does not support flushing")

// WriteEvent writes one SSE frame.
func WriteEvent(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
	return err
}

// Stream drains ch into w until ctx ends or the channel is disconnected.
// The caller owns registration: Stream neither connects nor disconnects ch.
func Stream(ctx context.Context, w http.ResponseWriter, ch *Channel, heartbeat time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errStreamingUnsupported
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello := Message{Event: EventConnected, Data: map[string]string{
		"channel_id": ch.ID,
		"user_id":    ch.UserID(),
	}}
	if err := WriteEvent(w, hello); err != nil {
		return err
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return nil
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		case msg := <-ch.Outbound():
			if err := WriteEvent(w, msg); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
