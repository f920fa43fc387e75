package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ftmaint/internal/app"
)

func main() {
	var (
		cfgPath = flag.String("config", "./ftmaint.yaml", "path to config file (yaml or json)")
		once    = flag.Bool("once", false, "run a single maintenance pass and exit")
		dryRun  = flag.Bool("dry-run", false, "decide but do not dispatch or write history")

		reorg   = flag.Int("reorg-threshold", -1, "override: minimum fragments to reorganize")
		rebuild = flag.Int("rebuild-threshold", -1, "override: fragments at which to rebuild instead")
		stop    = flag.Int("stop-after", -1, "override: number of maintenance operations per run")
		window  = flag.Int("window-minutes", -1, "override: maintenance window length (0 = unbounded)")
		months  = flag.Int("months-for-avg", -1, "override: history months used for estimates")
		maxSize = flag.Int("max-size-gb", -1, "override: skip catalogs larger than this (0 = unlimited)")
	)
	flag.Parse()

	ov := app.Overrides{
		ReorgThreshold:   *reorg,
		RebuildThreshold: *rebuild,
		StopAfter:        *stop,
		WindowMinutes:    *window,
		MonthsForAvg:     *months,
		MaxSizeGB:        *maxSize,
		DryRun:           *dryRun,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(*cfgPath, ov)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	defer a.Close()

	if *once {
		if err := a.RunOnce(ctx); err != nil {
			fmt.Println("fatal run:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.RunDaemon(ctx); err != nil {
		fmt.Println("fatal daemon:", err)
		os.Exit(1)
	}
}
