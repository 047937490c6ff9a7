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

// previewLength bounds the message body excerpt used in log lines. The emitted
// notification always carries the full body.
const previewLength = 80

type messageHandler struct {
	logger  *slog.Logger
	emitter Emitter
}

// NewMessageHandler creates the handler for message arrival events.
func NewMessageHandler(emitter Emitter, opts ...HandlerOption) Handler {
	_inst := &messageHandler{emitter: emitter, logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (h *messageHandler) Kind() string {
	return "message"
}

func (h *messageHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger.WithGroup("handler:message")
}

func (h *messageHandler) CanHandle(eventType string) bool {
	return eventType == event.Message || eventType == event.MessageAny
}

func (h *messageHandler) Handle(ctx context.Context, ev *event.WebhookEvent) error {
	var payload event.MessagePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode message payload")
	}

	h.logger.Info("message received",
		slog.String("session", ev.Session),
		slog.String("chat", payload.ChatID()),
		slog.Bool("fromMe", payload.FromMe),
		slog.String("preview", helpers.Truncate(payload.Body, previewLength)))

	notification := &event.Notification{
		Channel: "message",
		Session: ev.Session,
		Payload: map[string]string{
			"id":        payload.ID,
			"chatId":    payload.ChatID(),
			"from":      payload.From,
			"to":        payload.To,
			"fromMe":    strconv.FormatBool(payload.FromMe),
			"timestamp": strconv.FormatInt(payload.Timestamp, 10),
			"body":      payload.Body,
			"hasMedia":  strconv.FormatBool(payload.HasMedia),
		},
	}
	return errors.Wrap(h.emitter.Emit(ctx, notification), "failed to emit message notification")
}
