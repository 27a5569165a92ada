package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"earthgazer/internal/notifications"
	"earthgazer/internal/pipeline"
	"earthgazer/internal/preflight"
)

func newStageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newIngestCommand(ctx),
		newTrackCommand(ctx),
		newBackupCommand(ctx),
		newCompositeCommand(ctx),
		newRunCommand(ctx),
		newCheckCommand(ctx),
		newTestNotifyCommand(ctx),
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Query the catalog for new captures over every active location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, true, func(runCtx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Ingest(runCtx)
				printIngestReport(cmd, report)
				return err
			})
		},
	}
}

func newTrackCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var platformName string
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Discover band asset files for imported captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, false, func(runCtx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Process(runCtx, pipeline.Stages{Track: true, Force: force, Platform: platformName})
				printPassReport(cmd, report)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-track captures that are already tracked")
	cmd.Flags().StringVar(&platformName, "platform", "", "Only process captures of this platform")
	return cmd
}

func newBackupCommand(ctx *commandContext) *cobra.Command {
	var platformName string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy tracked band assets into the backup bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, false, func(runCtx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Process(runCtx, pipeline.Stages{Backup: true, Platform: platformName})
				printPassReport(cmd, report)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&platformName, "platform", "", "Only process captures of this platform")
	return cmd
}

func newCompositeCommand(ctx *commandContext) *cobra.Command {
	var names []string
	var platformName string
	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Assemble composites from backed up bands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, false, func(runCtx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Process(runCtx, pipeline.Stages{Composite: true, Composites: names, Platform: platformName})
				printPassReport(cmd, report)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&names, "name", nil, "Composite to build (repeatable; defaults to composite.names)")
	cmd.Flags().StringVar(&platformName, "platform", "", "Only process captures of this platform")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var names []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest, track, back up and assemble in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			notifier := notifications.NewService(cfg)
			started := time.Now()
			err = ctx.withChecked(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Run(runCtx, pipeline.RunOptions{Force: force, Composites: names})
				printIngestReport(cmd, report.Ingest)
				printPassReport(cmd, report.Pass)
				if err == nil {
					notifyQuietly(cmd, notifier.NotifyRunCompleted(runCtx, notifications.RunSummary{
						NewCaptures:  report.Ingest.Inserted,
						Processed:    report.Pass.Captures,
						FilesCopied:  report.Pass.FilesCopied,
						Composited:   report.Pass.Composited,
						Failed:       report.Pass.Failed,
						IngestFailed: report.Ingest.Failures,
						Duration:     time.Since(started),
					}))
				}
				return err
			})
			if err != nil && !errors.Is(err, pipeline.ErrLocked) {
				notifyQuietly(cmd, notifier.NotifyError(context.WithoutCancel(commandCtx(cmd)), err, "run"))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-track captures that are already tracked")
	cmd.Flags().StringSliceVar(&names, "name", nil, "Composite to build (repeatable; defaults to composite.names)")
	return cmd
}

func printIngestReport(cmd *cobra.Command, report pipeline.IngestReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingested %d new captures (%d duplicates) from %d catalog queries", report.Inserted, report.Dupes, report.Attempts)
	if report.Failures > 0 {
		fmt.Fprintf(out, ", %d failed", report.Failures)
	}
	fmt.Fprintln(out)
}

func printPassReport(cmd *cobra.Command, report pipeline.Report) {
	out := cmd.OutOrStdout()
	if report.Captures == 0 {
		fmt.Fprintln(out, "No captures to process")
		return
	}
	rows := [][]string{
		{"Captures", fmt.Sprint(report.Captures)},
		{"Tracked", fmt.Sprintf("%d (%d files)", report.Tracked, report.FilesTracked)},
		{"Backed up", fmt.Sprintf("%d (%d files copied)", report.BackedUp, report.FilesCopied)},
		{"Composited", fmt.Sprint(report.Composited)},
		{"Awaiting assets", fmt.Sprint(report.Deferred)},
		{"Failed", fmt.Sprint(report.Failed)},
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if report.Failed > 0 {
		fmt.Fprintln(out, "Inspect failures with `earthgazer capture list --status <error status>`")
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, database, storage destinations and catalog access",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := commandCtx(cmd)
			b, err := ctx.openBackends(runCtx, true)
			if err != nil {
				return err
			}
			defer b.Close()

			results := preflight.RunAll(runCtx, b.preflightTargets())
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, passLabel(r.Passed), r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}

func passLabel(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAILED"
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "notifications.ntfy_topic is not set; nothing to send")
				return nil
			}
			if err := notifications.NewService(cfg).TestNotification(commandCtx(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}

func notifyQuietly(cmd *cobra.Command, err error) {
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "notification failed: %v\n", err)
	}
}
