package main

import (
	"context"
	"net"
	"net/http"

	"github.com/accelmark/opcheck/internal/attest"
	"github.com/accelmark/opcheck/internal/config"
	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/harness"
	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func serveCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the conformance endpoint and Prometheus metrics",
		Action: func(c *cli.Context) error {
			figure.NewFigure("opcheck", "", true).Print()

			app := fx.New(
				fx.Supply(state.cfg, state.log),
				fx.Provide(
					newDeviceManager,
					newSigner,
					newRunner,
					harness.NewMux,
				),
				fx.Invoke(startServer),
				fx.NopLogger,
			)
			app.Run()
			return app.Err()
		},
	}
}

func newDeviceManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*device.Manager, error) {
	manager, err := device.NewManager(cfg.Device.Backend, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return manager.Cleanup() },
	})
	return manager, nil
}

func newSigner(cfg *config.Config, log *zap.Logger) *attest.Signer {
	return loadSigner(cfg.Attest.KeyfilePath, log)
}

func newRunner(manager *device.Manager, cfg *config.Config, signer *attest.Signer, log *zap.Logger) *harness.Runner {
	return harness.NewRunner(manager.Backend(), cfg.Tolerance, signer, log)
}

func startServer(lc fx.Lifecycle, mux *http.ServeMux, cfg *config.Config, log *zap.Logger) {
	server := &http.Server{Addr: cfg.Harness.Listen, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			log.Info("harness listening", zap.String("address", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
