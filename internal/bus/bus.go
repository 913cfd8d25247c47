// Package bus implements the per-request streaming event bus: a single
// ordered queue that serializes concurrently produced pipeline events into
// one server-sent-event stream, plus the component-completion registry that
// gates the terminal "complete" event.
//
// The bus is multi-producer / single-consumer. Producers (orchestrator,
// TTS callbacks) enqueue events with [Bus.Send] and friends; the HTTP handler
// drains serialized frames from [Bus.Stream]. Events are emitted strictly in
// enqueue order.
package bus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"
)

// EventType tags an event for the client.
type EventType string

// Event types understood by stream clients.
const (
	EventStatus           EventType = "status"
	EventValidationResult EventType = "validation_result"
	EventKMResult         EventType = "km_result"
	EventThinking         EventType = "thinking"
	EventAnswerChunk      EventType = "answer_chunk"
	EventTTSAudio         EventType = "tts_audio"
	EventAudio            EventType = "audio"
	EventMetadata         EventType = "metadata"
	EventError            EventType = "error"
	EventComplete         EventType = "complete"
)

// Status is the pipeline-stage tag carried by status, complete and error events.
type Status string

// Pipeline stages.
const (
	StatusStarting         Status = "starting"
	StatusValidating       Status = "validating"
	StatusSearchingKM      Status = "searching_km"
	StatusGeneratingAnswer Status = "generating_answer"
	StatusSessionEnded     Status = "session_ended"
	StatusComplete         Status = "complete"
	StatusError            Status = "error"
)

// Event is one record on the bus. It marshals directly into the SSE payload.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`
	Status    Status    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// completeMessage is the message carried by the terminal complete event.
const completeMessage = "Answer pipeline completed successfully"

// pollInterval is how long the consumer sleeps when the queue is empty.
const pollInterval = 50 * time.Millisecond

// Bus is the per-request event queue and completion registry.
// The zero value is not usable; create one with [New].
type Bus struct {
	mu         sync.Mutex
	queue      []Event
	components map[string]bool
	errored    bool
	completed  bool // terminal complete event enqueued

	now func() time.Time // test seam
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		components: make(map[string]bool),
		now:        time.Now,
	}
}

// Send enqueues a typed event carrying a data payload.
func (b *Bus) Send(t EventType, data any) {
	b.enqueue(Event{Type: t, Data: data})
}

// SendStatus enqueues a status event. msg may be empty.
func (b *Bus) SendStatus(s Status, msg string) {
	b.enqueue(Event{Type: EventStatus, Status: s, Message: msg})
}

// SendError enqueues an error event and flags the stream as failed. Once the
// queue drains the stream terminates even if components never complete.
func (b *Bus) SendError(msg string) {
	b.mu.Lock()
	b.errored = true
	b.queue = append(b.queue, b.stamp(Event{Type: EventError, Status: StatusError, Message: msg}))
	b.mu.Unlock()
}

// PlayAudio enqueues a prerecorded audio asset as a base64 audio event.
// format is the client-facing format label, e.g. "wav".
func (b *Bus) PlayAudio(data []byte, format string) {
	if len(data) == 0 {
		return
	}
	b.Send(EventAudio, map[string]any{
		"audio_data":   base64.StdEncoding.EncodeToString(data),
		"audio_size":   len(data),
		"audio_format": format,
	})
}

// RegisterComponent adds name to the completion registry. The terminal
// complete event is only emitted once every registered component has been
// marked complete. Registering twice is a no-op.
func (b *Bus) RegisterComponent(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.components[name]; !ok {
		b.components[name] = false
	}
}

// MarkComponentComplete marks name as finished. Marks are idempotent. When
// the last outstanding component completes, the terminal complete event is
// enqueued exactly once.
func (b *Bus) MarkComponentComplete(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.components[name] = true
	if b.completed {
		return
	}
	for _, done := range b.components {
		if !done {
			return
		}
	}
	b.completed = true
	b.queue = append(b.queue, b.stamp(Event{
		Type:    EventComplete,
		Status:  StatusComplete,
		Message: completeMessage,
	}))
}

// MarkAllComplete force-completes every registered component. Used on the
// orchestrator error path to release the consumer.
func (b *Bus) MarkAllComplete() {
	b.mu.Lock()
	names := make([]string, 0, len(b.components))
	for name := range b.components {
		names = append(names, name)
	}
	b.mu.Unlock()
	for _, name := range names {
		b.MarkComponentComplete(name)
	}
}

// Stream returns a channel of serialized SSE frames ("data: <json>\n\n"),
// one per event, in strict enqueue order. The channel closes when the queue
// is drained and either all registered components completed or an error was
// flagged, or when ctx is cancelled.
func (b *Bus) Stream(ctx context.Context) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			ev, ok, done := b.pop()
			if ok {
				frame, err := marshalFrame(ev)
				if err != nil {
					continue
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
				continue
			}
			if done {
				return
			}
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// pop dequeues the oldest event. done reports whether the stream may
// terminate once the queue is empty.
func (b *Bus) pop() (ev Event, ok bool, done bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) > 0 {
		ev = b.queue[0]
		b.queue = b.queue[1:]
		return ev, true, false
	}
	return Event{}, false, b.completed || b.errored
}

func (b *Bus) enqueue(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, b.stamp(ev))
	b.mu.Unlock()
}

// stamp sets the event timestamp. Callers must hold b.mu or own the event.
func (b *Bus) stamp(ev Event) Event {
	ev.Timestamp = b.now().UTC().Format(time.RFC3339Nano)
	return ev
}

// marshalFrame serializes an event into one SSE frame.
func marshalFrame(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}
