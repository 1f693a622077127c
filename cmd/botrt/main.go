package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/flowbot/internal/config"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/platform/discord"
	"github.com/rakunlabs/flowbot/internal/platform/telegram"
	"github.com/rakunlabs/flowbot/internal/runtime"
	"github.com/rakunlabs/flowbot/internal/spec"
)

var (
	name    = "flowbot"
	version = "v0.0.0"
)

func main() {
	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(cfg.SpecPath)
	if err != nil {
		return fmt.Errorf("failed to read spec document %s: %w", cfg.SpecPath, err)
	}
	doc, err := spec.Load(data)
	if err != nil {
		return fmt.Errorf("failed to load spec document: %w", err)
	}

	adapter, err := buildAdapter(cfg.Platform)
	if err != nil {
		return err
	}

	rt, err := runtime.Build(ctx, cfg, doc, adapter)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}

	return rt.Start(ctx)
}

func buildAdapter(cfg config.Platform) (platform.ClientSurface, error) {
	switch {
	case cfg.Discord != nil:
		return discord.New(cfg.Discord.Token)
	case cfg.Telegram != nil:
		return telegram.New(cfg.Telegram.Token)
	default:
		return nil, fmt.Errorf("no platform configured: set platform.discord.token or platform.telegram.token")
	}
}
