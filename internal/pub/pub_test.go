package pub

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncode(t *testing.T) {
	timeNow = func() time.Time { return time.Unix(1_700_000_000, 0) }
	defer func() { timeNow = time.Now }()

	ev := NewEvent(EventMessageSent)
	ev.ClientKind, ev.Stream, ev.ProposalNo = "scoped", "Test Stream 1", 1
	ev.Topic, ev.MessageID = "greetings", 42

	b, err := ev.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_sent","at":1700000000,"client_kind":"scoped",
		"stream":"Test Stream 1","proposal_no":1,"topic":"greetings","message_id":42}`, string(b))
}

func TestMessageAttributes(t *testing.T) {
	b, err := json.Marshal(NewEvent(EventClientRegistered))
	require.NoError(t, err)
	attrs := messageAttributes(b)
	assert.Equal(t, EventClientRegistered, *attrs["event-type"].StringValue)
	assert.Equal(t, auditSource, *attrs["source"].StringValue)

	attrs = messageAttributes([]byte("not json"))
	_, ok := attrs["event-type"]
	assert.False(t, ok)
	assert.Len(t, attrs, 2)
}

func TestNop(t *testing.T) {
	assert.NoError(t, NewNop().PublishRaw(context.Background(), "arn", []byte("{}")))
}
