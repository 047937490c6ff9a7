package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/isometry/waha-pipeline/internal/event"
)

// Emitter receives ownership of a normalized notification and forwards it to
// the outer protocol layer. Delivery is best-effort: a failed emit is logged
// by the handler that produced the notification and never retried.
type Emitter interface {
	Emit(ctx context.Context, n *event.Notification) error
}

// WriterEmitter serializes notifications as JSON lines to an io.Writer. It is
// the default collaborator when no outer protocol server is attached.
type WriterEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterEmitter creates an emitter writing one JSON document per line.
func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{w: w}
}

// Emit writes the notification as a single JSON line.
func (e *WriterEmitter) Emit(_ context.Context, n *event.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(append(payload, '\n'))
	return err
}
