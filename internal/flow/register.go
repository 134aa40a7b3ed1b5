package flow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"zwop/internal/ports"
	"zwop/internal/types"
)

const generatedKeyBytes = 32

// RegisterRequest describes a new client. Key is generated when empty.
type RegisterRequest struct {
	Kind       types.Kind       `json:"kind" yaml:"kind"`
	Key        string           `json:"key,omitempty" yaml:"key,omitempty"`
	Stream     string           `json:"stream,omitempty" yaml:"stream,omitempty"`
	ProposalNo int              `json:"proposal_no,omitempty" yaml:"proposal_no,omitempty"`
	Bot        *types.BotConfig `json:"bot,omitempty" yaml:"bot,omitempty"`
}

// Build turns req into a validated client, generating its key if needed. Nothing is stored.
func (req RegisterRequest) Build() (types.Client, error) {
	key := req.Key
	if key == "" {
		var err error
		if key, err = GenerateKey(); err != nil {
			return nil, err
		}
	}

	var c types.Client
	switch req.Kind {
	case types.KindScoped, "":
		c = types.ScopedClient{Key: key, Stream: req.Stream, ProposalNo: req.ProposalNo, Bot: req.Bot}
	case types.KindAdmin:
		if req.Stream != "" || req.ProposalNo != 0 || req.Bot != nil {
			return nil, types.Err(types.ErrInvalidClient, nil, "admin client takes no stream, proposal or bot")
		}
		c = types.AdminClient{Key: key, Admin: true}
	default:
		return nil, types.Err(types.ErrInvalidClient, nil, "unknown kind %q", req.Kind)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Register inserts the client described by req and returns it, key included.
func Register(ctx context.Context, repo ports.ClientRepository, req RegisterRequest) (types.Client, error) {
	c, err := req.Build()
	if err != nil {
		return nil, err
	}
	if err := Store(ctx, repo, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Store inserts c through the repository method matching its kind.
func Store(ctx context.Context, repo ports.ClientRepository, c types.Client) error {
	switch v := c.(type) {
	case types.ScopedClient:
		return repo.Put(ctx, v)
	case types.AdminClient:
		return repo.PutAdmin(ctx, v)
	}
	return types.Err(types.ErrInvalidClient, nil, "unknown client type %T", c)
}

// GenerateKey returns a random URL-safe API key.
func GenerateKey() (string, error) {
	b := make([]byte, generatedKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
