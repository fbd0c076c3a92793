// s1mcpd runs the command bridge against a simulated game world. In the
// shipped mod the engine calls Bridge.Tick from its update loop; here a
// ticker at the configured frame rate plays that role.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ifBars/S1MCPServer-sub001/pkg/bridge"
	"github.com/ifBars/S1MCPServer-sub001/pkg/config"
	"github.com/ifBars/S1MCPServer-sub001/pkg/game"
	"github.com/ifBars/S1MCPServer-sub001/pkg/journal"
	"github.com/ifBars/S1MCPServer-sub001/pkg/logging"
	"github.com/ifBars/S1MCPServer-sub001/pkg/logtail"
)

func main() {
	configPath := flag.String("config", "", "Path to config.toml (optional)")
	port := flag.Int("port", 0, "Override server port (optional)")
	flag.Parse()

	logger := logging.New("s1mcpd")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Errorf("load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		logger.Errorf("configure logging: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	world := game.NewWorld()
	deps := game.Deps{
		World:      world,
		Inspector:  game.ProbeInspector(world),
		ServerName: cfg.Game.ServerName,
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		var err error
		store, err = journal.Open(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		deps.History = store
		logger.Infof("command journal at %s", store.Path())
	}

	if cfg.Game.LogPath != "" {
		tailer, err := logtail.New(cfg.Game.LogPath, 500, logger)
		if err != nil {
			logger.Errorf("log tailing disabled: %v", err)
		} else {
			defer tailer.Close()
			deps.Logs = tailer
			logger.Infof("tailing game log %s", cfg.Game.LogPath)
		}
	}

	router := bridge.NewRouter()
	if err := game.Register(router, deps); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	opts := bridge.Options{
		BindAddress:   cfg.Server.Host,
		Port:          cfg.Server.Port,
		MaxFrameBytes: cfg.Bridge.MaxFrameBytes,
		TickBudget:    cfg.Bridge.TickBudget,
		Logger:        logger,
	}
	if store != nil {
		opts.Journal = store
	}
	b, err := bridge.New(router, opts)
	if err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	interval := time.Second / time.Duration(cfg.Bridge.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	statusEvery := time.NewTicker(30 * time.Second)
	defer statusEvery.Stop()

	logger.Infof("bridge ready on %s, ticking at %d Hz", b.Addr(), cfg.Bridge.TickRate)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("shutting down")
			return nil
		case <-ticker.C:
			b.Tick()
		case <-statusEvery.C:
			status := b.Status()
			logger.Debugf("status: state=%s epoch=%d inbound=%d outbound=%d tick=%d",
				status.State, status.Epoch, status.InboundDepth, status.OutboundDepth, status.Tick)
		}
	}
}
