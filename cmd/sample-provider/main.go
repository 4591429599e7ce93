// Package main runs the sample capability provider: the builtin file and text
// capabilities, or the ones named in a manifest, served on the provider subject.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/morezero/capability-bridge/internal/config"
	"github.com/morezero/capability-bridge/internal/server"
	"github.com/morezero/capability-bridge/pkg/commsutil"
	"github.com/morezero/capability-bridge/pkg/provider"
)

const logPrefix = "sample-provider:main"

func main() {
	if err := run(); err != nil {
		log.Fatalf("sample-provider: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForProvider(); err != nil {
		return err
	}
	server.SetupLogging(cfg)

	manifest, err := provider.LoadManifest(cfg.ProviderManifestFile)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	caps, err := manifest.Build(cfg.ProviderRoot)
	if err != nil {
		return fmt.Errorf("build capabilities: %w", err)
	}

	p := provider.New(provider.Params{
		Name:           manifest.Name,
		Version:        manifest.Version,
		Subject:        cfg.ProviderSubject,
		RequestTimeout: cfg.InvokeTimeout,
	})
	if err := p.Register(caps...); err != nil {
		return fmt.Errorf("register capabilities: %w", err)
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, manifest.Name)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.COMMSURL, err)
	}
	defer nc.Drain()

	if err := p.Start(nc); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - %s %s serving %v from %s", logPrefix, manifest.Name, manifest.Version, p.Names(), cfg.ProviderRoot))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	p.Shutdown(fmt.Sprintf("received %s", sig))
	return nil
}
