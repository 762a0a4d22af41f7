package main

import (
	"fmt"

	"schedbot/internal/app"
	"schedbot/internal/config"
	kit "schedbot/internal/transport"
	telegram "schedbot/internal/transport/telegram/adapter"
	logx "schedbot/pkg/logx"
)

// withCore loads the config, opens the pipeline and closes it after fn.
// A Telegram sender is only built when deliver is set.
func withCore(deliver bool, fn func(*config.Config, *app.Core) error) error {
	cfg, err := config.NewConfigManager(configPath).Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logx.NewConsole(cfg.Logging.Level)

	var sender kit.Sender
	if deliver {
		d, err := cfg.Durations()
		if err != nil {
			return err
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: d.PollTimeout}, log)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	core, err := app.NewCore(cfg, log, nil, sender)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(cfg, core)
}
