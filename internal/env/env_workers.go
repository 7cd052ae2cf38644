//go:build js && wasm

package env

import (
	"context"

	"github.com/syumai/workers/cloudflare"
)

// Get looks up a configuration value from the Worker's environment bindings.
func Get(ctx context.Context, key string) (string, bool) {
	v := cloudflare.Getenv(key)
	return v, v != ""
}
