package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"zwop/internal/flow"
	"zwop/internal/ports"
	"zwop/internal/types"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// PutClients registers every client listed in the YAML file at path. The whole file is
// validated first, including key clashes within the file and with the store, so a bad
// entry means nothing is inserted. Keys left out of the file are generated.
func PutClients(ctx context.Context, repo ports.ClientRepository, path string, out io.Writer) ([]types.Client, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []flow.RegisterRequest
	if err := yaml.UnmarshalWithOptions(b, &reqs, yaml.DisallowUnknownField()); err != nil {
		return nil, types.Err(types.ErrInvalidClient, err, "parse %s", path)
	}

	clients := make([]types.Client, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))
	for i, req := range reqs {
		c, err := req.Build()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := seen[c.ClientKey()]; dup {
			return nil, fmt.Errorf("entry %d: %w", i, types.Err(types.ErrDuplicateKey, nil, "key repeated in file"))
		}
		seen[c.ClientKey()] = struct{}{}
		_, err = repo.Get(ctx, c.ClientKey())
		if err == nil {
			return nil, fmt.Errorf("entry %d: %w", i, types.Err(types.ErrDuplicateKey, nil, "key already stored"))
		} else if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		clients = append(clients, c)
	}

	for i, c := range clients {
		if err := flow.Store(ctx, repo, c); err != nil {
			return clients[:i], fmt.Errorf("entry %d: %w", i, err)
		}
		log.WithFields(log.Fields{"kind": c.Kind(), "client": flow.ComputeKey(c.ClientKey())}).Debug("client imported")
	}
	if err := printJSON(out, types.RedactedRecords(clients)); err != nil {
		return clients, err
	}
	return clients, nil
}

// GetClient prints the record stored under key, bot API key masked.
func GetClient(ctx context.Context, repo ports.ClientRepository, key string, out io.Writer) error {
	c, err := repo.Get(ctx, key)
	if err != nil {
		return err
	}
	return printJSON(out, types.ToRecord(c).Redacted())
}

// ListClients prints all records, or what the JMESPath query selects from them.
func ListClients(ctx context.Context, repo ports.ClientRepository, query string, out io.Writer) error {
	clients, err := repo.List(ctx)
	if err != nil {
		return err
	}
	v, err := flow.FilterClients(query, clients)
	if err != nil {
		return err
	}
	return printJSON(out, v)
}

// AddClient registers one client and prints it with its key.
func AddClient(ctx context.Context, repo ports.ClientRepository, req flow.RegisterRequest, out io.Writer) error {
	c, err := flow.Register(ctx, repo, req)
	if err != nil {
		return err
	}
	return printJSON(out, types.ToRecord(c).Redacted())
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
