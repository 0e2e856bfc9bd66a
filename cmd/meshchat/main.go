package main

import (
	"context"

	"github.com/joho/godotenv"

	"meshchat/internal/app"
	"meshchat/pkg/config"
	"meshchat/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dataVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, _, _, _, err := config.LoadEffective(cfgPath)
	if err != nil {
		shutdown.Abort("failed to load config", err, dataVal, 0)
	}

	// flags win over env/config when explicitly set
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dataDir := dataVal
	if !setFlags["db"] && cfg.Storage.DBPath != "" {
		// anchor operator artifacts next to the replica by default
		dataDir = cfg.Storage.DBPath
	}

	a, err := app.New(cfg, addr, dataDir, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize node", err, dataDir, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("node exited with error", err, dataDir, 0)
	}
}
