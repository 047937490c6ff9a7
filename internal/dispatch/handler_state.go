package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/isometry/waha-pipeline/internal/event"
	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/pkg/errors"
)

type stateHandler struct {
	logger  *slog.Logger
	emitter Emitter
}

// NewStateHandler creates the handler for session connectivity change events.
func NewStateHandler(emitter Emitter, opts ...HandlerOption) Handler {
	_inst := &stateHandler{emitter: emitter, logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (h *stateHandler) Kind() string {
	return "state"
}

func (h *stateHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger.WithGroup("handler:state")
}

func (h *stateHandler) CanHandle(eventType string) bool {
	return eventType == event.StateChange
}

func (h *stateHandler) Handle(ctx context.Context, ev *event.WebhookEvent) error {
	var payload event.StatePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode state payload")
	}

	h.logger.Info("session state changed",
		slog.String("session", ev.Session),
		slog.String("state", payload.State),
		slog.String("reason", payload.Reason))

	notification := &event.Notification{
		Channel: "state",
		Session: ev.Session,
		Payload: map[string]string{
			"state":  payload.State,
			"reason": payload.Reason,
		},
	}
	return errors.Wrap(h.emitter.Emit(ctx, notification), "failed to emit state notification")
}
