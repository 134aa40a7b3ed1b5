package ports

import (
	"context"
	"io"
	"zwop/internal/types"
)

// Messenger performs Zulip actions as one bot.
type Messenger interface {
	SendMessage(ctx context.Context, stream, topic, content string) (types.SendResult, error)
	UpdateMessage(ctx context.Context, messageID int64, topic, content string, mode types.PropagateMode) (map[string]any, error)
	UploadFile(ctx context.Context, filename string, r io.Reader) (types.UploadResult, error)
	GetStreamTopics(ctx context.Context, stream string) ([]types.Topic, error)
}

// MessengerFactory returns the Messenger a scoped client acts through.
type MessengerFactory interface {
	For(client types.ScopedClient) (Messenger, error)
}
