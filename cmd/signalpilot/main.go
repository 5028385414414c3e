// Command signalpilot answers questions about MF4 recordings with a
// planner, a coder and a selector model.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalpilot/signalpilot/internal/app"
	"github.com/signalpilot/signalpilot/internal/config"
	"github.com/signalpilot/signalpilot/internal/logging"
	"github.com/signalpilot/signalpilot/internal/metrics"
	"github.com/signalpilot/signalpilot/internal/version"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "signalpilot",
		Short:         "Ask questions about MF4 signal recordings",
		Long:          "signalpilot plans and writes Python analysis code for MF4 recordings using LLMs.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("SIGNALPILOT_CONFIG"), "path to config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newAskCmd(g),
		newAgentCmd(g),
		newActionsCmd(g),
		newTemplateCmd(),
		newModelsCmd(g),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the defaults when none is given, and
// applies --log-level.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	_, noColor := os.LookupEnv("NO_COLOR")
	return logging.New(w, cfg.Log, noColor)
}

// loadApp builds the configured services. The caller closes the app.
func (g *globals) loadApp(stderr io.Writer) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(stderr, cfg)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}

// serveMetrics exposes /metrics on addr until ctx is done. An empty addr
// disables the endpoint.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", "addr", addr)
}
