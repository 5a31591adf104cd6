package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"routing-simulator/internal/config"
	"routing-simulator/internal/simulation"
	"routing-simulator/internal/types"
)

// runHeadless drives a single run with the configured simulation settings and
// prints the final statistics and summary.
func runHeadless(ctx context.Context, flags *pflag.FlagSet) error {
	settings, err := config.Load(flags)
	if err != nil {
		return err
	}

	app, err := build(ctx, settings)
	if err != nil {
		return err
	}
	defer app.close()

	var once sync.Once
	done := make(chan struct{})
	app.engine.AddObserver(simulation.ObserverFunc(func(ev simulation.Event) {
		if ev.Type == simulation.EventState && ev.State == types.StateIdle {
			once.Do(func() { close(done) })
		}
	}))

	if err := app.engine.Start(ctx, settings.Simulation); err != nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		_ = app.engine.Stop()
		<-done
	}

	app.engine.WaitSummaries()

	return printReport(app.engine.Snapshot())
}

func printReport(snap simulation.Snapshot) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "run\t%s\n", snap.RunID)
	fmt.Fprintf(w, "processed\t%d/%d\n", snap.Processed, snap.Target)
	fmt.Fprintf(w, "success rate\t%.2f%%\n\n", snap.OverallSR)

	fmt.Fprintln(w, "connector\tsuccessful\tfailed\tsr\tvolume")
	for _, c := range snap.Connectors {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\t%.2f%%\n", c.Name, c.Successful, c.Failed, c.SuccessRate, c.VolumeShare)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if snap.Summary != nil {
		fmt.Printf("\n%s\n", snap.Summary.Text)
	}

	return nil
}
