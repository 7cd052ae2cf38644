//go:build js && wasm

package main

import (
	"github.com/okitz/driveserve/internal/app"
	"github.com/okitz/driveserve/internal/counter"
	"github.com/okitz/driveserve/internal/logger"
	"github.com/syumai/workers"
)

func main() {
	log := logger.New()

	var counters counter.Store
	kvStore, err := counter.NewKVStore("driveserve_kv")
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  KV namespace unavailable, usage counters will not persist")
		counters = counter.NewMemoryStore()
	} else {
		log.Info().Msg("📦 Using Cloudflare KV usage counters")
		counters = kvStore
	}

	srv := app.NewServer(log, counters)

	// workers.Serve handles all the HTTP server setup
	workers.Serve(srv)
}
