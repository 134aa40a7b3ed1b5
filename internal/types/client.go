package types

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Kind discriminates the client variants sharing one key space.
type Kind string

const (
	KindScoped Kind = "scoped"
	KindAdmin  Kind = "admin"

	APIKeyHdrName = "X-API-key"

	MaxKeyLength = 256
)

// Client is either a ScopedClient or an AdminClient. The set of implementations is closed.
type Client interface {
	ClientKey() string
	Kind() Kind
	Validate() error

	clone() Client
}

// BotConfig holds the Zulip bot credentials a scoped client acts with.
type BotConfig struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty" dynamodbav:"name,omitempty"`
	Email  string `json:"email" yaml:"email" dynamodbav:"email" validate:"required,email"`
	APIKey string `json:"api_key" yaml:"api_key" dynamodbav:"api_key" validate:"required"`
	Site   string `json:"site" yaml:"site" dynamodbav:"site" validate:"required,url"`
	ID     int    `json:"id,omitempty" yaml:"id,omitempty" dynamodbav:"id,omitempty" validate:"gte=0"`
}

// ScopedClient may only act within one stream. ProposalNo identifies the proposal the
// stream belongs to. Bot is optional; the server's default bot is used when it is nil.
type ScopedClient struct {
	Key        string     `validate:"apikey"`
	Stream     string     `validate:"required,max=60"`
	ProposalNo int        `validate:"gte=0"`
	Bot        *BotConfig `validate:"omitempty"`
}

func (c ScopedClient) ClientKey() string { return c.Key }
func (c ScopedClient) Kind() Kind        { return KindScoped }

func (c ScopedClient) Validate() error {
	if err := validate.Struct(c); err != nil {
		return Err(ErrInvalidClient, err, "scoped client")
	}
	return nil
}

func (c ScopedClient) clone() Client {
	if c.Bot != nil {
		bot := *c.Bot
		c.Bot = &bot
	}
	return c
}

// AdminClient is resolved through the same key lookup but is not bound to a stream.
type AdminClient struct {
	Key   string `validate:"apikey"`
	Admin bool
}

func (c AdminClient) ClientKey() string { return c.Key }
func (c AdminClient) Kind() Kind        { return KindAdmin }

func (c AdminClient) Validate() error {
	if err := validate.Struct(c); err != nil {
		return Err(ErrInvalidClient, err, "admin client")
	}
	if !c.Admin {
		return Err(ErrInvalidClient, nil, "admin client must have admin=true")
	}
	return nil
}

func (c AdminClient) clone() Client { return c }

// CloneClient returns a deep copy so callers cannot mutate records held by a store.
func CloneClient(c Client) Client {
	if c == nil {
		return nil
	}
	return c.clone()
}

// Record is the persisted shape of a Client. Kind is always written and is the only thing
// used to pick the variant on the way back.
type Record struct {
	Kind       Kind       `json:"kind" yaml:"kind" dynamodbav:"kind"`
	Key        string     `json:"key" yaml:"key" dynamodbav:"key"`
	Stream     string     `json:"stream,omitempty" yaml:"stream,omitempty" dynamodbav:"stream,omitempty"`
	ProposalNo *int       `json:"proposal_no,omitempty" yaml:"proposal_no,omitempty" dynamodbav:"proposal_no,omitempty"`
	Bot        *BotConfig `json:"bot,omitempty" yaml:"bot,omitempty" dynamodbav:"bot,omitempty"`
	Admin      *bool      `json:"admin,omitempty" yaml:"admin,omitempty" dynamodbav:"admin,omitempty"`
}

// ToRecord converts a client into its persisted envelope.
func ToRecord(c Client) Record {
	switch v := c.(type) {
	case ScopedClient:
		proposal := v.ProposalNo
		r := Record{Kind: KindScoped, Key: v.Key, Stream: v.Stream, ProposalNo: &proposal}
		if v.Bot != nil {
			bot := *v.Bot
			r.Bot = &bot
		}
		return r
	case AdminClient:
		admin := v.Admin
		return Record{Kind: KindAdmin, Key: v.Key, Admin: &admin}
	}
	panic(fmt.Sprintf("unknown client type %T", c))
}

// Client converts the envelope back into the variant named by Kind and validates it.
func (r Record) Client() (Client, error) {
	var c Client
	switch r.Kind {
	case KindScoped:
		if r.Admin != nil {
			return nil, Err(ErrInvalidClient, nil, "scoped client carries admin field")
		}
		if r.ProposalNo == nil {
			return nil, Err(ErrInvalidClient, nil, "scoped client has no proposal_no")
		}
		sc := ScopedClient{Key: r.Key, Stream: r.Stream, ProposalNo: *r.ProposalNo}
		if r.Bot != nil {
			bot := *r.Bot
			sc.Bot = &bot
		}
		c = sc
	case KindAdmin:
		if r.Stream != "" || r.ProposalNo != nil || r.Bot != nil {
			return nil, Err(ErrInvalidClient, nil, "admin client carries scoped fields")
		}
		if r.Admin == nil {
			return nil, Err(ErrInvalidClient, nil, "admin client has no admin flag")
		}
		c = AdminClient{Key: r.Key, Admin: *r.Admin}
	case "":
		return nil, Err(ErrInvalidClient, nil, "client has no kind")
	default:
		return nil, Err(ErrInvalidClient, nil, "client has unknown kind %q", r.Kind)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("apikey", isAPIKey); err != nil {
		panic(err)
	}
	return v
}

// isAPIKey accepts non-empty printable keys without whitespace, up to MaxKeyLength bytes.
func isAPIKey(fl validator.FieldLevel) bool {
	k := fl.Field().String()
	if k == "" || len(k) > MaxKeyLength {
		return false
	}
	return strings.IndexFunc(k, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) < 0
}
