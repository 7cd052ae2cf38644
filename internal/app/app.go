package app

import (
	"context"
	"strings"

	"github.com/okitz/driveserve/internal/auth"
	"github.com/okitz/driveserve/internal/counter"
	"github.com/okitz/driveserve/internal/credentials"
	"github.com/okitz/driveserve/internal/drive"
	"github.com/okitz/driveserve/internal/env"
	"github.com/okitz/driveserve/internal/server"
	"github.com/rs/zerolog"
)

// EnvRootFolders is the comma-separated list of Drive parent folder IDs that
// scopes all listing and upload operations.
const EnvRootFolders = "ROOT_FOLDER_IDS"

// NewServer wires the credential resolver, token manager and Drive gateway
// into a ready-to-serve handler. Credential resolution stays lazy; nothing
// here touches the network or the environment.
func NewServer(logger zerolog.Logger, counters counter.Store) *server.Server {
	resolver := credentials.NewResolver(logger)
	minter := auth.NewMinter()
	tokens := auth.NewTokenManager(resolver, minter, logger)
	driveClient := drive.NewClient(tokens, logger, RootFolders)

	return server.New(logger, driveClient, counters)
}

// RootFolders parses the configured Drive parent folder IDs.
func RootFolders(ctx context.Context) []string {
	raw, _ := env.Get(ctx, EnvRootFolders)
	var folders []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			folders = append(folders, id)
		}
	}
	return folders
}
