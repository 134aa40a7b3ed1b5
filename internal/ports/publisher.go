package ports

import "context"

// Publisher delivers audit events. Delivery is best-effort from the caller's point of view.
type Publisher interface {
	PublishRaw(ctx context.Context, arn string, payload []byte) error
}
