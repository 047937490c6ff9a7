package resource

import (
	"context"
	"net/url"
	"strings"

	"github.com/isometry/waha-pipeline/internal/gateway"
	"github.com/pkg/errors"
)

const chatMessagesTemplate = "waha://chat/{chatId}/messages?limit&offset&downloadMedia&timestampGte&timestampLte&fromMe&session"

type chatMessagesProducer struct {
	client  *gateway.Client
	session string
}

// NewChatMessagesProducer creates the producer for per-chat message pages.
func NewChatMessagesProducer(client *gateway.Client, defaultSession string) Producer {
	return &chatMessagesProducer{client: client, session: defaultSession}
}

func (p *chatMessagesProducer) Template() string {
	return chatMessagesTemplate
}

func (p *chatMessagesProducer) Matches(uri string) bool {
	_, ok := p.chatID(uri)
	return ok
}

func (p *chatMessagesProducer) Read(ctx context.Context, uri string) ([]byte, error) {
	chatID, ok := p.chatID(uri)
	if !ok {
		return nil, errors.Errorf("URI %s does not match %s", uri, chatMessagesTemplate)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid resource URI %s", uri)
	}
	values := u.Query()

	query := gateway.MessagesQuery{
		Session:      queryString(values, "session", p.session),
		Limit:        queryInt(values, "limit", 50),
		Offset:       queryInt(values, "offset", 0),
		TimestampGte: queryInt64(values, "timestampGte"),
		TimestampLte: queryInt64(values, "timestampLte"),
		FromMe:       queryBool(values, "fromMe"),
	}
	if downloadMedia := queryBool(values, "downloadMedia"); downloadMedia != nil {
		query.DownloadMedia = *downloadMedia
	}
	return p.client.ChatMessages(ctx, chatID, query)
}

// chatID extracts the chat identifier from waha://chat/{chatId}/messages URIs.
func (p *chatMessagesProducer) chatID(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != Scheme || u.Host != "chat" {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 || segments[1] != "messages" || segments[0] == "" {
		return "", false
	}
	return segments[0], true
}
