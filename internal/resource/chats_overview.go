package resource

import (
	"context"
	"net/url"
	"strings"

	"github.com/isometry/waha-pipeline/internal/gateway"
	"github.com/pkg/errors"
)

const chatsOverviewTemplate = "waha://chats/overview?limit&offset&ids&session"

type chatsOverviewProducer struct {
	client  *gateway.Client
	session string
}

// NewChatsOverviewProducer creates the producer for the chat overview
// resource. The session query parameter overrides defaultSession per request.
func NewChatsOverviewProducer(client *gateway.Client, defaultSession string) Producer {
	return &chatsOverviewProducer{client: client, session: defaultSession}
}

func (p *chatsOverviewProducer) Template() string {
	return chatsOverviewTemplate
}

func (p *chatsOverviewProducer) Matches(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme == Scheme && u.Host == "chats" && u.Path == "/overview"
}

func (p *chatsOverviewProducer) Read(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid resource URI %s", uri)
	}
	values := u.Query()

	query := gateway.ChatsOverviewQuery{
		Session: queryString(values, "session", p.session),
		Limit:   queryInt(values, "limit", 20),
		Offset:  queryInt(values, "offset", 0),
	}
	if ids := values.Get("ids"); ids != "" {
		query.IDs = strings.Split(ids, ",")
	}
	return p.client.ChatsOverview(ctx, query)
}
