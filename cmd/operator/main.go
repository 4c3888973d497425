package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/npa-publisher-orchestrator/cmd/flags"
	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/metrics"
	"github.com/ruteri/npa-publisher-orchestrator/orchestrator"
)

var unitKeyFlag = &cli.StringFlag{
	Name:     "key",
	Required: true,
	Usage:    "unit key to operate on",
}

func main() {
	operatorFlags := []cli.Flag{
		flags.LogServiceFlagFn("npa-publisher-operator"),
	}
	operatorFlags = append(operatorFlags, flags.CommonFlags...)
	operatorFlags = append(operatorFlags, flags.ProvisioningFlags...)

	app := &cli.App{
		Name:  "publisher-operator",
		Usage: "One-shot publisher orchestration commands",
		Flags: operatorFlags,
		Commands: []*cli.Command{
			{
				Name:  "reconcile",
				Usage: "Reconcile the desired publisher set and print the run report",
				Flags: []cli.Flag{
					flags.PublisherNameFlag,
					flags.PublisherCountFlag,
				},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wiring, err := flags.BuildController(cCtx, logger)
					if err != nil {
						return err
					}

					desired, err := interfaces.DesiredUnits(
						cCtx.String(flags.PublisherNameFlag.Name),
						cCtx.Int(flags.PublisherCountFlag.Name))
					if err != nil {
						return err
					}

					metrics.ReconcileRuns.WithLabelValues("cli").Inc()
					report, err := wiring.Controller.Reconcile(cCtx.Context, desired)
					if err != nil {
						return err
					}
					return printReport(report)
				},
			},
			{
				Name:  "replace",
				Usage: "Destroy one unit and rebuild it with a fresh identity and token",
				Flags: []cli.Flag{unitKeyFlag},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wiring, err := flags.BuildController(cCtx, logger)
					if err != nil {
						return err
					}

					key := interfaces.UnitKey(cCtx.String(unitKeyFlag.Name))
					if err := key.Valid(); err != nil {
						return err
					}

					report, err := wiring.Controller.ReplaceUnit(cCtx.Context, key)
					if err != nil {
						return err
					}
					return printReport(report)
				},
			},
			{
				Name:  "destroy",
				Usage: "Tear down every managed unit",
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wiring, err := flags.BuildController(cCtx, logger)
					if err != nil {
						return err
					}

					report, err := wiring.Controller.Reconcile(cCtx.Context, nil)
					if err != nil {
						return err
					}
					return printReport(report)
				},
			},
			{
				Name:  "drift",
				Usage: "Compare recorded state against the tenant and compute APIs",
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wiring, err := flags.BuildController(cCtx, logger)
					if err != nil {
						return err
					}

					warnings, err := wiring.Controller.DetectDrift(cCtx.Context)
					if err != nil {
						return err
					}
					if len(warnings) == 0 {
						fmt.Println("no drift detected")
						return nil
					}
					for _, warning := range warnings {
						fmt.Printf("%s: %s\n", warning.Key, warning.Detail)
					}
					return fmt.Errorf("%d unit(s) drifted", len(warnings))
				},
			},
			{
				Name:  "force-unlock",
				Usage: "Break a stale plan lock left behind by a crashed run",
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					lock := orchestrator.NewFlockPlanLock(cCtx.String(flags.LockFileFlag.Name), 0, logger)
					return lock.ForceRelease()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func printReport(report *orchestrator.Report) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return report.Err()
}
