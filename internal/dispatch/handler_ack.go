package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/isometry/waha-pipeline/internal/event"
	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/pkg/errors"
)

type ackHandler struct {
	logger  *slog.Logger
	emitter Emitter
}

// NewAckHandler creates the handler for delivery/read acknowledgment events.
func NewAckHandler(emitter Emitter, opts ...HandlerOption) Handler {
	_inst := &ackHandler{emitter: emitter, logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (h *ackHandler) Kind() string {
	return "ack"
}

func (h *ackHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger.WithGroup("handler:ack")
}

func (h *ackHandler) CanHandle(eventType string) bool {
	return eventType == event.MessageAck
}

func (h *ackHandler) Handle(ctx context.Context, ev *event.WebhookEvent) error {
	var payload event.AckPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode ack payload")
	}

	ackName := event.AckName(payload.Ack)
	h.logger.Info("acknowledgment received",
		slog.String("session", ev.Session),
		slog.String("message", payload.ID),
		slog.String("ack", ackName))

	notification := &event.Notification{
		Channel: "ack",
		Session: ev.Session,
		Payload: map[string]string{
			"id":      payload.ID,
			"ack":     strconv.Itoa(payload.Ack),
			"ackName": ackName,
			"from":    payload.From,
			"to":      payload.To,
		},
	}
	return errors.Wrap(h.emitter.Emit(ctx, notification), "failed to emit ack notification")
}
