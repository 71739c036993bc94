package main

import (
	"context"
	"log"

	"github.com/dzaharov/vaultsync/internal/server"
	"github.com/dzaharov/vaultsync/internal/server/config"
)

// set via -ldflags "-X main.buildVersion=..."
var buildVersion = "N/A"

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg, buildVersion)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
