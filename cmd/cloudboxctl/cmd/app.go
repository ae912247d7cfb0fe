package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/templui/cloudbox/internal/app"
	"github.com/templui/cloudbox/internal/config"
	"github.com/templui/cloudbox/internal/logger"
)

// withApp loads the configuration, wires the app and hands it to fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	flush := logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)
	defer flush()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return nil
}
