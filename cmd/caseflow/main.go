// Command caseflow is the caseflow command line and server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/caseflow/internal/adapters/driven/config/file"
	"github.com/custodia-labs/caseflow/internal/adapters/driving/cli"
	"github.com/custodia-labs/caseflow/internal/app"
	"github.com/custodia-labs/caseflow/internal/logger"
)

func main() {
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap(ctx context.Context, path string) (*cli.Services, error) {
	cfg, err := file.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Log.File != "" {
		logger.SetFile(logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		})
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Hub:        a.Hub,
		Pipeline:   a.Pipeline,
		Sessions:   a.Sessions,
		Authorizer: a.Refresher,
		IssueToken: a.IssueToken,
		Serve:      a.Serve,
		Close: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return a.Close(ctx)
		},
	}, nil
}
