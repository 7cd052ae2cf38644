package main

import (
	"context"
	"net/http"
	"os"

	"github.com/okitz/driveserve/internal/app"
	"github.com/okitz/driveserve/internal/counter"
	"github.com/okitz/driveserve/internal/logger"
)

func main() {
	log := logger.New()
	ctx := context.Background()

	roots := app.RootFolders(ctx)
	if len(roots) == 0 {
		log.Warn().Msg("⚠️  ROOT_FOLDER_IDS is not set, listings and uploads will span the whole drive")
	} else {
		log.Info().Strs("root_folders", roots).Msg("Scoping to configured root folders")
	}

	srv := app.NewServer(log, counter.NewMemoryStore())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info().Str("port", port).Msg("Starting server")
	log.Fatal().Err(http.ListenAndServe(":"+port, srv)).Msg("Server failed to start")
}
