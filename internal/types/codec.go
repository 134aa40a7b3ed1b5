package types

import (
	"bytes"

	"github.com/goccy/go-json"
)

// MarshalClient encodes a single client as its JSON envelope.
func MarshalClient(c Client) ([]byte, error) {
	return json.Marshal(ToRecord(c))
}

// UnmarshalClient decodes a JSON envelope. Unknown fields are rejected so a record of one
// kind can never be silently read as the other.
func UnmarshalClient(b []byte) (Client, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, Err(ErrInvalidClient, err, "")
	}
	return r.Client()
}

// ToRecords converts clients into envelopes, preserving order.
func ToRecords(clients []Client) []Record {
	out := make([]Record, 0, len(clients))
	for _, c := range clients {
		out = append(out, ToRecord(c))
	}
	return out
}

// RedactedSecret replaces bot credentials in every view of a record outside the store.
const RedactedSecret = "**********"

// Redacted returns a copy of r with the bot API key masked. The receiver is not modified.
func (r Record) Redacted() Record {
	if r.Bot != nil {
		bot := *r.Bot
		if bot.APIKey != "" {
			bot.APIKey = RedactedSecret
		}
		r.Bot = &bot
	}
	return r
}

// RedactedRecords is ToRecords with every bot API key masked.
func RedactedRecords(clients []Client) []Record {
	out := make([]Record, 0, len(clients))
	for _, c := range clients {
		out = append(out, ToRecord(c).Redacted())
	}
	return out
}
