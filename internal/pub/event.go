package pub

import (
	"time"

	"github.com/goccy/go-json"
)

const (
	EventClientRegistered = "client_registered"
	EventMessageSent      = "message_sent"
	EventMessageUpdated   = "message_updated"
	EventFileUploaded     = "file_uploaded"
)

// Event is the audit payload. Key is never included, only its kind and scope.
type Event struct {
	Type       string `json:"type"`
	At         int64  `json:"at"`
	ClientKind string `json:"client_kind"`
	Stream     string `json:"stream,omitempty"`
	ProposalNo int    `json:"proposal_no,omitempty"`
	Topic      string `json:"topic,omitempty"`
	MessageID  int64  `json:"message_id,omitempty"`
}

var timeNow = time.Now

func NewEvent(typ string) Event {
	return Event{Type: typ, At: timeNow().Unix()}
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
