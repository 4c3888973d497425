package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/npa-publisher-orchestrator/cmd/flags"
	"github.com/ruteri/npa-publisher-orchestrator/httpserver"
	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/metrics"
)

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var reconcileIntervalFlag = &cli.Int64Flag{
	Name:  "reconcile-interval-seconds",
	Value: 0,
	Usage: "run a reconciliation every N seconds; 0 disables periodic runs",
}

func main() {
	serverFlags := []cli.Flag{
		listenAddrFlag,
		reconcileIntervalFlag,
		flags.PublisherNameFlag,
		flags.PublisherCountFlag,
		flags.LogServiceFlagFn("npa-publisher-orchestrator"),
	}
	serverFlags = append(serverFlags, flags.CommonFlags...)
	serverFlags = append(serverFlags, flags.ProvisioningFlags...)

	app := &cli.App{
		Name:  "publisher-server",
		Usage: "Serve the publisher orchestration API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			wiring, err := flags.BuildController(cCtx, logger)
			if err != nil {
				logger.Error("Failed to wire controller", "err", err)
				return err
			}

			baseName := cCtx.String(flags.PublisherNameFlag.Name)
			count := cCtx.Int(flags.PublisherCountFlag.Name)

			handler := httpserver.NewHandler(wiring.Controller, baseName, count, logger)
			admin := httpserver.NewAdminHandler(wiring.State, wiring.Lock, logger)

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))
			server, err := httpserver.New(cfg, handler, admin)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			// Optional periodic reconciliation alongside the API.
			stopPeriodic := make(chan struct{})
			if interval := cCtx.Int64(reconcileIntervalFlag.Name); interval > 0 {
				desired, err := interfaces.DesiredUnits(baseName, count)
				if err != nil {
					logger.Error("Invalid desired unit set", "err", err)
					return err
				}
				go runPeriodicReconcile(wiring, desired, time.Duration(interval)*time.Second, stopPeriodic, logger)
			}

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			close(stopPeriodic)
			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runPeriodicReconcile(wiring *flags.Wiring, desired []interfaces.PublisherUnit, interval time.Duration, stop <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logger.Info("Periodic reconciliation starting")
			metrics.ReconcileRuns.WithLabelValues("periodic").Inc()
			report, err := wiring.Controller.Reconcile(context.Background(), desired)
			if err != nil {
				logger.Error("Periodic reconciliation failed to run", "err", err)
				continue
			}
			if reportErr := report.Err(); reportErr != nil {
				logger.Error("Periodic reconciliation finished with failed units", "err", reportErr)
			} else {
				logger.Info("Periodic reconciliation finished")
			}
		}
	}
}
