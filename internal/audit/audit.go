package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/store"
)

// Event is one audit record. UserID is the account the event is about,
// ActorID whoever triggered it (usually the same user).
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Method    string    `json:"method,omitempty"`
	Success   bool      `json:"success"`
	UserID    uuid.UUID `json:"user_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Entry converts e into the persisted row shape.
func (e Event) Entry() store.AuditEntry {
	return store.AuditEntry{
		ID:        uuid.New(),
		UserID:    e.UserID,
		Action:    e.Action,
		Method:    e.Method,
		Success:   e.Success,
		ActorID:   e.ActorID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Detail:    e.Detail,
		CreatedAt: e.Timestamp,
	}
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// StoreSink appends events to the audit_log table. Writes run outside any
// transaction carried by ctx.
type StoreSink struct {
	log store.AuditLog
}

func NewStoreSink(log store.AuditLog) *StoreSink {
	return &StoreSink{log: log}
}

func (s *StoreSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.log == nil {
		return
	}
	if err := s.log.Append(store.Detach(ctx), event.Entry()); err != nil {
		logger.From(ctx).Warn("audit append failed",
			logger.Component("audit"), logger.UserID(event.UserID.String()), logger.Err(err))
	}
}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}
