//go:build !js || !wasm

package env

import (
	"context"
	"os"
)

// Get looks up a configuration value by key. The context is unused in native
// builds but required on Workers, where env bindings hang off the request.
func Get(ctx context.Context, key string) (string, bool) {
	return os.LookupEnv(key)
}
