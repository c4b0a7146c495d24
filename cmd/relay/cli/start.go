package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/credentials"
	"github.com/loopwire/relay/internal/eventsink"
	"github.com/loopwire/relay/internal/logx"
	"github.com/loopwire/relay/internal/orchestrator"
	"github.com/loopwire/relay/internal/routing"
	"github.com/loopwire/relay/internal/server"
	"github.com/loopwire/relay/internal/upstream"
	"github.com/loopwire/relay/pkg/oauthclient"
	"github.com/loopwire/relay/pkg/pricing"
)

func newStartCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy's HTTP ingress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "relay.yaml", "path to config yaml")
	return cmd
}

func runStart(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	rt, err := routing.NewTable(cfg.RoutingModels())
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}

	cred, err := credentials.NewManager(cfg.CredentialStore.Path, oauthclient.New(nil))
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	up := upstream.New(0)

	ring := eventsink.NewRingBuffer(200)
	sink := eventsink.Sink(eventsink.Multi{eventsink.LogSink{}, ring})

	orch := orchestrator.New(rt, cfg.Providers, cred, up, sink)
	if resolver, err := pricing.LoadResolver(cfg.Pricing.PriceFile, cfg.Pricing.OverridesFile); err != nil {
		logx.Event(logx.LevelWarn, "pricing catalog failed to load, cost annotation disabled", map[string]any{"error": err.Error()})
	} else {
		orch.Pricing = resolver
	}
	orch.UsageEstimate = &cfg.UsageEstimation

	if watcher, err := credentials.NewWatcher(cred, cfg.Providers); err != nil {
		logx.Event(logx.LevelWarn, "collaborator credential watcher disabled", map[string]any{"error": err.Error()})
	} else if watcher != nil {
		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		go watcher.Run(watchCtx)
	}

	srv := server.New(cfg, orch, sink, ring)

	if path := strings.TrimSpace(cfg.Server.PidFile); path != "" {
		if err := writePIDFile(path); err != nil {
			logx.Event(logx.LevelWarn, "failed to write pid file", map[string]any{"error": err.Error(), "path": path})
		} else {
			defer os.Remove(path)
		}
	}

	return srv.Run()
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
