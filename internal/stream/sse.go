package stream

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

var errSlowSubscriber = errors.New("stream: subscriber buffer full")

// chanSubscriber buffers payloads toward one SSE connection. A full
// buffer means the consumer stopped draining; Send fails and the broker
// prunes the subscriber.
type chanSubscriber struct {
	ch chan []byte
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{ch: make(chan []byte, 16)}
}

func (s *chanSubscriber) Send(payload []byte) error {
	select {
	case s.ch <- payload:
		return nil
	default:
		return errSlowSubscriber
	}
}

// SSEHandler serves the live feed over server-sent events.
type SSEHandler struct {
	broker *Broker
}

// NewSSEHandler constructs an SSE handler.
func NewSSEHandler(broker *Broker) *SSEHandler {
	return &SSEHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/stream.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := newChanSubscriber()
	if err := h.broker.Subscribe(sub); err != nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(sub)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload := <-sub.ch:
			writeEventData(w, payload)
			flusher.Flush()
		case <-done:
			return
		}
	}
}

// writeEventData frames one payload as an SSE data field. Payloads may
// span lines (producers are free to pretty-print their JSON), and every
// line needs its own data: prefix or the client drops the rest.
func writeEventData(w io.Writer, payload []byte) {
	for _, line := range bytes.Split(payload, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(line)
		_, _ = w.Write([]byte("\n"))
	}
	_, _ = w.Write([]byte("\n"))
}
