package redis

import (
	"context"
	"errors"

	"zwop/internal/types"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	clientsHashKey = "_zwop_clients"
	clientOrderKey = "_zwop_client_order"
)

// insertScript adds the record and appends its key to the order list only if the key is
// not yet present. Returns 1 on insert, 0 on duplicate.
var insertScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("RPUSH", KEYS[2], ARGV[1])
return 1
`)

// Repository is a ClientRepository on Redis. Records live in one hash keyed by API key;
// insertion order lives in a list.
type Repository struct {
	cli *redis.Client
}

func NewRepository(cli *redis.Client) *Repository {
	return &Repository{cli: cli}
}

func (s *Repository) Get(ctx context.Context, key string) (types.Client, error) {
	out := s.cli.HGet(ctx, clientsHashKey, key)
	if err := out.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.Err(types.ErrNotFound, nil, "no client for key")
		}
		return nil, types.Err(types.ErrDataStoreAccess, err, "")
	}
	return decode(out.Val())
}

func (s *Repository) List(ctx context.Context) ([]types.Client, error) {
	keys, err := s.cli.LRange(ctx, clientOrderKey, 0, -1).Result()
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "")
	}
	clients := make([]types.Client, 0, len(keys))
	if len(keys) == 0 {
		return clients, nil
	}
	vals, err := s.cli.HMGet(ctx, clientsHashKey, keys...).Result()
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "")
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, types.Err(types.ErrCorruptStore, nil, "order entry %d has no record", i)
		}
		c, err := decode(raw)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func (s *Repository) Put(ctx context.Context, client types.ScopedClient) error {
	return s.insert(ctx, client)
}

func (s *Repository) PutAdmin(ctx context.Context, client types.AdminClient) error {
	return s.insert(ctx, client)
}

func (s *Repository) insert(ctx context.Context, c types.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(types.ToRecord(c))
	if err != nil {
		return err
	}
	inserted, err := insertScript.Run(ctx, s.cli,
		[]string{clientsHashKey, clientOrderKey},
		c.ClientKey(), string(b),
	).Int()
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "")
	}
	if inserted == 0 {
		return types.Err(types.ErrDuplicateKey, nil, "%s client", c.Kind())
	}
	return nil
}

// ClearAll purges every client. Used in tests only.
func (s *Repository) ClearAll(ctx context.Context) error {
	return s.cli.Del(ctx, clientsHashKey, clientOrderKey).Err()
}

func decode(raw string) (types.Client, error) {
	c, err := types.UnmarshalClient([]byte(raw))
	if err != nil {
		return nil, types.Err(types.ErrCorruptStore, err, "")
	}
	return c, nil
}
