package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/domain"
)

// RunsTopic is the stream carrying every action transition of every run.
const RunsTopic = "runs"

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // topic -> set of channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

func (sm *StreamManager) Subscribe(topic string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[topic]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, topic)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(topic string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "topic", topic)
		}
	}
}

// StreamHooks returns lifecycle hooks publishing every action transition on RunsTopic.
func StreamHooks(sm *StreamManager) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEvent: func(_ context.Context, e domain.LogEvent) {
			if payload, err := json.Marshal(e); err == nil {
				sm.Broadcast(RunsTopic, string(payload))
			}
		},
	}
}

// SubscribeEvents handles the GET /events request (SSE).
// Without session_id it streams run events; with it, the session's state diffs,
// optionally filtered by a comma separated list of facts in watch.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	params, err := bindEventsParams(r)
	if err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}

	topic := RunsTopic
	session := params.SessionID != nil && *params.SessionID != ""
	if session {
		topic = *params.SessionID
	}

	var watch map[domain.Fact]bool
	if params.Watch != nil && session {
		watch = make(map[domain.Fact]bool)
		for _, f := range *params.Watch {
			if f = strings.TrimSpace(f); f != "" {
				watch[domain.Fact(f)] = true
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(topic)
	defer cancel()

	s.logger.Info("SSE: client subscribed", "topic", topic)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			drain(w, flusher, ch, watch)
			s.logger.Info("SSE: client disconnected", "topic", topic)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			send(w, flusher, msg, watch)
		}
	}
}

// drain writes the messages already queued when the request ended.
func drain(w http.ResponseWriter, flusher http.Flusher, ch <-chan string, watch map[domain.Fact]bool) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			send(w, flusher, msg, watch)
		default:
			return
		}
	}
}

func send(w http.ResponseWriter, flusher http.Flusher, msg string, watch map[domain.Fact]bool) {
	if watch != nil && !watched(msg, watch) {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", msg)
	flusher.Flush()
}

func watched(msg string, watch map[domain.Fact]bool) bool {
	var diff domain.StateDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for f := range diff.Changed {
		if watch[f] {
			return true
		}
	}
	return false
}
