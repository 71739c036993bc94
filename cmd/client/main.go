package main

import (
	"context"

	"github.com/dzaharov/vaultsync/internal/client/cli"
	"github.com/dzaharov/vaultsync/internal/client/config"
)

func main() {
	cfg := config.LoadConfig()
	app := cli.NewApp(cfg)
	app.Run(context.Background())
}
