package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/receiptflow/internal/engine"
	"github.com/angelmondragon/receiptflow/internal/intake"
	"github.com/angelmondragon/receiptflow/pkg/config"
	"github.com/angelmondragon/receiptflow/pkg/kvstore"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/metrics"
	"github.com/angelmondragon/receiptflow/pkg/state"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

const usage = `usage: receiptflow [flags] <step> [<step> ...]

steps:
  import <file.csv>                          queue receipts from a CSV file
  simulate                                   queue a random batch of sample receipts
  add <store> <product> <qty> <subtotal>     add one manually entered product
  rename <old> <new>                         rename a store branch in the ledger and queue
  review                                     confirm every queued group into the wishlist
  exit                                       discard queued groups
  wishlist                                   print the wishlist
  submit                                     turn the wishlist into transactions
  history                                    print transaction history
  reset                                      delete every stored list
`

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "receiptflow"})

	_ = godotenv.Load()

	limit := flag.Int("limit", 0, "history page size")
	cursor := flag.String("cursor", "", "history page cursor")
	channel := flag.String("channel", "", "history filter by upload channel")
	stats := flag.Bool("stats", false, "print engine counters on exit")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "receiptflow",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"storage": cfg.Storage.NormalizedDriver(),
	})

	kv, closeKV, err := kvstore.Open(ctx, cfg, logg)
	requireResource(ctx, logg, "storage", err)
	defer closeKV()

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	eng := engine.Build(state.Options{KV: kv, Logger: logg, Metrics: engineMetrics}, cfg.Engine)
	requireResource(ctx, logg, "engine state", eng.Hydrate(ctx))

	svc, err := intake.NewService(intake.ServiceParams{Engine: eng, Config: cfg.Engine, Logger: logg})
	requireResource(ctx, logg, "intake", err)

	runner, err := NewRunner(RunnerParams{
		Engine: eng,
		Intake: svc,
		Logger: logg,
		Out:    os.Stdout,
		Options: RunOptions{
			HistoryLimit:   *limit,
			HistoryCursor:  *cursor,
			HistoryChannel: *channel,
		},
	})
	requireResource(ctx, logg, "runner", err)

	runErr := runner.Run(ctx, flag.Args())
	if *stats {
		printStats(registry)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "receiptflow: %v\n", runErr)
		os.Exit(1)
	}
}

func printStats(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gather metrics: %v\n", err)
		return
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			labels := ""
			for _, pair := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", pair.GetName(), pair.GetValue())
			}
			fmt.Fprintf(os.Stderr, "%s%s %v\n", family.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
