// Command claudeproxy runs a local translation proxy that accepts
// Anthropic-style message requests and serves them from an OpenAI-style
// chat-completions backend (xAI or Groq).
//
// Usage:
//
//	claudeproxy --adapter xai
//	claudeproxy --adapter groq --port 5003
//	claudeproxy --version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/78Spinoza/claudeproxy/pkg/adapter"
	"github.com/78Spinoza/claudeproxy/pkg/backend"
	"github.com/78Spinoza/claudeproxy/pkg/config"
	"github.com/78Spinoza/claudeproxy/pkg/console"
	"github.com/78Spinoza/claudeproxy/pkg/logger"
	"github.com/78Spinoza/claudeproxy/pkg/registry"
	"github.com/78Spinoza/claudeproxy/pkg/selector"
	"github.com/78Spinoza/claudeproxy/pkg/server"
)

const (
	exitOK         = 0
	exitConfig     = 2
	exitPort       = 3
	exitCredential = 4
	exitInternal   = 64
)

// CLI defines the command-line interface. Flags only; configuration not
// given here comes from the environment.
type CLI struct {
	Adapter  string           `help:"Backend adapter (xai or groq)."`
	Port     int              `help:"Port to listen on (default 5000 for xai, 5003 for groq)."`
	LogLevel string           `name:"log-level" help:"Log level (debug, info, warn, error)."`
	Version  kong.VersionFlag `help:"Show version information."`
}

func main() {
	os.Exit(run())
}

func run() int {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("claudeproxy"),
		kong.Description("Local Anthropic-to-OpenAI API translation proxy."),
		kong.Vars{"version": "claudeproxy " + config.Version},
	)

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "claudeproxy: %v\n", err)
		return exitConfig
	}

	cfg, err := config.Load(cli.Adapter, cli.Port, cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "claudeproxy: %v\n", err)
		var credErr *config.CredentialError
		if errors.As(err, &credErr) {
			return exitCredential
		}
		return exitConfig
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	osFamily, err := registry.DetectOSFamily(cfg.OSOverride)
	if err != nil {
		fmt.Fprintf(os.Stderr, "claudeproxy: %v\n", err)
		return exitConfig
	}

	reg, err := registry.New(osFamily)
	if err != nil {
		slog.Error("building tool registry", "error", err)
		return exitInternal
	}

	client := backend.New(cfg.Adapter, cfg.BaseURL, cfg.APIKey)

	var profile selector.Profile
	var ad adapter.Adapter
	switch cfg.Adapter {
	case config.AdapterGroq:
		profile = selector.GroqProfile()
		ad = adapter.NewGroq(reg, selector.New(profile, cfg.HaikuFastPath), client)
	default:
		profile = selector.XAIProfile()
		ad = adapter.NewXAI(reg, selector.New(profile, cfg.HaikuFastPath), client)
	}

	srv := server.New(cfg.ListenAddr(), ad, config.Version)

	printBanner(cfg, osFamily, reg.Len())
	probeCredential(client, profile.General)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return console.New(os.Stdin, os.Stdout, stop).Run(gctx) })

	if err := g.Wait(); err != nil {
		var portErr *server.PortInUseError
		if errors.As(err, &portErr) {
			fmt.Fprintf(os.Stderr, "claudeproxy: %v\n", err)
			return exitPort
		}
		slog.Error("proxy terminated", "error", err)
		return exitInternal
	}
	return exitOK
}

func printBanner(cfg *config.Config, osFamily registry.OSFamily, toolCount int) {
	fmt.Printf("claudeproxy %s\n", config.Version)
	fmt.Printf("  adapter:   %s\n", cfg.Adapter)
	fmt.Printf("  listening: http://%s/v1/messages\n", cfg.ListenAddr())
	fmt.Printf("  os family: %s\n", osFamily)
	fmt.Printf("  tools:     %d registered\n", toolCount)
	fmt.Println("Console: R restart, Q quit, H help")
}

// probeCredential fires a one-token request so a bad key surfaces at startup
// rather than on the first real request. A failed probe is a warning: the
// backend may simply be unreachable right now.
func probeCredential(client *backend.Client, model string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.TestConnection(ctx, model); err != nil {
		slog.Warn("credential probe failed", "error", err)
		return
	}
	slog.Info("credential probe succeeded")
}
