package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/willingning/minote-sync/internal"
	pkgconfig "github.com/willingning/minote-sync/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.Bool("dry-run") {
		cfg.Sync.DryRun = true
	}
	if root := cmd.String("root"); root != "" {
		cfg.Sync.Root = root
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "minote-sync",
		Usage:  "Mirror Xiaomi cloud notes into a local Obsidian-ready Markdown tree",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("MINOTE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Override the sync output root",
				Sources: cli.EnvVars("MINOTE_ROOT"),
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Plan and report without writing files or the manifest",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
