package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/reindex"
	"github.com/tenebrium/tenebriumd/signal"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %s\n", err)
		os.Exit(1)
	}

	err = realMain(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func realMain(cfg *ConfigFlags) error {
	source, err := dbaccess.New(cfg.Source)
	if err != nil {
		return err
	}
	defer source.Close()

	var destination *dbaccess.DatabaseContext
	if cfg.Destination != "" {
		destination, err = dbaccess.New(cfg.Destination)
		if err != nil {
			return err
		}
		defer destination.Close()
	}

	migrator := reindex.NewMigrator(&reindex.Config{
		Source:             source,
		Destination:        destination,
		ArchivePath:        cfg.Archive,
		CheckpointPath:     cfg.Checkpoint,
		CheckpointInterval: cfg.Interval,
		DryRun:             cfg.DryRun,
		SampleSize:         cfg.Sample,
	})

	if cfg.Verify {
		err := migrator.Verify()
		if err != nil {
			return err
		}
		fmt.Println("verification passed")
		return nil
	}

	// An interrupt cancels the run; the migrator honors it at the next
	// checkpoint boundary and a later invocation resumes from there.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupt := signal.InterruptListener()
	go func() {
		<-interrupt
		cancel()
	}()

	report, runErr := migrator.Run(ctx)
	if report != nil {
		saveErr := report.Save(cfg.Report)
		if saveErr != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %s\n", saveErr)
		} else {
			fmt.Printf("report written to %s\n", cfg.Report)
		}
		fmt.Printf("entries: %d in, %d out, %d skipped, %d errors\n",
			report.TotalInputs, report.TotalOutputs, report.Skipped,
			len(report.Errors))
	}
	if runErr != nil {
		return runErr
	}

	// A dry run verifies its accounting against the source only; a real run
	// verifies the destination end-to-end.
	if cfg.DryRun {
		return migrator.VerifyDryRun(report)
	}
	return migrator.Verify()
}
