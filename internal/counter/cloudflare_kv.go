//go:build js && wasm

package counter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/syumai/workers/cloudflare/kv"
)

// KVStore keeps counters in a Cloudflare KV namespace. KV is eventually
// consistent, so concurrent increments from different edge locations may
// undercount slightly; stats here are informational.
type KVStore struct {
	namespace *kv.Namespace
}

// NewKVStore binds to the KV namespace configured in wrangler.toml.
func NewKVStore(binding string) (*KVStore, error) {
	namespace, err := kv.NewNamespace(binding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVStore{namespace: namespace}, nil
}

func (s *KVStore) Incr(ctx context.Context, key string) error {
	current, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := s.namespace.PutString(key, strconv.FormatInt(current+1, 10), nil); err != nil {
		return fmt.Errorf("failed to store counter %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.namespace.GetString(key, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter %s: %w", key, err)
	}
	return value, nil
}
