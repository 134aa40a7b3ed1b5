package zulip

import (
	"errors"
	"net/http"

	"zwop/internal/ports"
	"zwop/internal/types"
)

var ErrNoBot = errors.New("client has no bot credentials and no default bot is configured")

// Factory hands out a Client for a scoped client's own bot, falling back to the default.
type Factory struct {
	Default *types.BotConfig
	HTTP    *http.Client
}

var _ ports.MessengerFactory = (*Factory)(nil)

func (f *Factory) For(c types.ScopedClient) (ports.Messenger, error) {
	bot := c.Bot
	if bot == nil {
		bot = f.Default
	}
	if bot == nil {
		return nil, ErrNoBot
	}
	return NewClient(*bot, f.HTTP), nil
}
