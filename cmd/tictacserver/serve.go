package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/frontend/ws"
	"github.com/cory-johannsen/tictactoe/internal/game/rules"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket game server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			lc := assemble(cfg, logger, prometheus.NewRegistry())
			logger.Info("starting tic-tac-toe server",
				zap.String("addr", cfg.Server.Addr()),
				zap.String("path", cfg.Server.Path),
				zap.Duration("assembly", time.Since(start)),
			)
			return lc.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML configuration file (env: TICTAC_*)")
	return cmd
}

// assemble wires the store, coordinator, router, acceptor and lobby ticker
// into a Lifecycle.
func assemble(cfg config.Config, logger *zap.Logger, reg *prometheus.Registry) *server.Lifecycle {
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(reg)
	}

	store := state.NewStore(rules.Classic{}, state.NewSessionID)
	coord := gameserver.NewCoordinator(store, logger.Named("coordinator"), metrics)
	router := gameserver.NewRouter(coord, logger.Named("router"), metrics)

	acceptor := ws.NewAcceptor(cfg.Server, router, logger.Named("ws"), metrics)
	if cfg.Metrics.Enabled {
		acceptor.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	ticker := gameserver.NewLobbyTicker(cfg.Lobby.InitialDelay, cfg.Lobby.RefreshInterval, coord.BroadcastLobby, logger.Named("lobby"))

	lc := server.NewLifecycle(logger)
	lc.Add("websocket", &server.FuncService{
		StartFn: func(context.Context) error { return acceptor.ListenAndServe() },
		StopFn:  acceptor.Stop,
	})
	lc.Add("lobby-refresh", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			ticker.Start(ctx)
			<-ctx.Done()
			return nil
		},
		StopFn: ticker.Stop,
	})
	return lc
}
