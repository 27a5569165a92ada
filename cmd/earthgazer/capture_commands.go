package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Inspect and recover captures",
	}
	captureCmd.AddCommand(newCaptureListCommand(ctx))
	captureCmd.AddCommand(newCaptureShowCommand(ctx))
	captureCmd.AddCommand(newCaptureRetryCommand(ctx))
	return captureCmd
}

func newCaptureListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var platformName string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List captures with their pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.CaptureFilter{Platform: strings.ToUpper(strings.TrimSpace(platformName)), Limit: limit}
			for _, raw := range statuses {
				status, ok := store.ParseCaptureStatus(strings.TrimSpace(raw))
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				captures, err := st.ListCaptures(runCtx, filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(captures) == 0 {
					fmt.Fprintln(out, "No captures found")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(captures))
				for _, c := range captures {
					rows = append(rows, []string{
						c.MainID,
						c.Platform,
						c.SensingTime.UTC().Format(time.RFC3339),
						formatCloud(c.CloudCover),
						statusLabel(c.Status, colorize),
						c.ErrorKind,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Capture", "Platform", "Sensed", "Cloud", "Status", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&platformName, "platform", "", "Filter by platform")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum captures to list")
	return cmd
}

type fileView struct {
	ID          string   `json:"id"`
	Band        string   `json:"band"`
	Format      string   `json:"format"`
	Method      string   `json:"method"`
	Status      string   `json:"status"`
	SourcePath  string   `json:"source_path,omitempty"`
	StoragePath string   `json:"storage_path,omitempty"`
	Measure     string   `json:"radiometric_measure,omitempty"`
	Level       string   `json:"atmospheric_level,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

type captureView struct {
	MainID       string     `json:"main_id"`
	SecondaryID  string     `json:"secondary_id,omitempty"`
	MissionID    string     `json:"mission_id,omitempty"`
	Platform     string     `json:"platform"`
	SensingTime  time.Time  `json:"sensing_time"`
	CloudCover   *float64   `json:"cloud_cover,omitempty"`
	BaseURL      string     `json:"base_url"`
	Status       string     `json:"status"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Files        []fileView `json:"files"`
}

func newCaptureShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <main_id>",
		Short: "Show a capture with its files and lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				view, err := loadCaptureView(runCtx, st, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(view)
				}
				renderCaptureView(cmd, view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func loadCaptureView(ctx context.Context, st *store.Store, mainID string) (*captureView, error) {
	c, err := st.GetCapture(ctx, mainID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, services.Wrap(services.ErrNotFound, "capture", "show", fmt.Sprintf("capture %q", mainID), nil)
	}
	files, err := st.ListFiles(ctx, store.FileFilter{CaptureID: c.MainID})
	if err != nil {
		return nil, err
	}
	view := &captureView{
		MainID:       c.MainID,
		SecondaryID:  c.SecondaryID,
		MissionID:    c.MissionID,
		Platform:     c.Platform,
		SensingTime:  c.SensingTime.UTC(),
		CloudCover:   c.CloudCover,
		BaseURL:      c.BaseURL,
		Status:       string(c.Status),
		ErrorKind:    c.ErrorKind,
		ErrorMessage: c.ErrorMessage,
		Files:        make([]fileView, 0, len(files)),
	}
	for _, f := range files {
		fv := fileView{
			ID:          f.ID,
			Band:        f.SubID,
			Format:      f.Format,
			Method:      string(f.Method),
			Status:      string(f.Status),
			SourcePath:  f.SourcePath,
			StoragePath: f.StoragePath,
			Measure:     string(f.RadiometricMeasure),
			Level:       string(f.AtmosphericLevel),
		}
		sources, err := st.SourceFiles(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			fv.Sources = append(fv.Sources, src.ID)
		}
		view.Files = append(view.Files, fv)
	}
	return view, nil
}

func renderCaptureView(cmd *cobra.Command, view *captureView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Capture:  %s\n", view.MainID)
	if view.SecondaryID != "" {
		fmt.Fprintf(out, "Product:  %s\n", view.SecondaryID)
	}
	fmt.Fprintf(out, "Platform: %s %s\n", view.Platform, view.MissionID)
	fmt.Fprintf(out, "Sensed:   %s\n", view.SensingTime.Format(time.RFC3339))
	fmt.Fprintf(out, "Cloud:    %s\n", formatCloud(view.CloudCover))
	fmt.Fprintf(out, "Source:   %s\n", view.BaseURL)
	fmt.Fprintf(out, "Status:   %s\n", statusLabel(store.CaptureStatus(view.Status), shouldColorize(out)))
	if view.ErrorKind != "" {
		fmt.Fprintf(out, "Error:    [%s] %s\n", view.ErrorKind, view.ErrorMessage)
	}
	if len(view.Files) == 0 {
		fmt.Fprintln(out, "No files tracked")
		return
	}
	rows := make([][]string, 0, len(view.Files))
	for _, f := range view.Files {
		location := f.StoragePath
		if location == "" {
			location = f.SourcePath
		}
		rows = append(rows, []string{
			shortID(f.ID),
			f.Method,
			f.Band,
			f.Status,
			location,
			strings.Join(shortIDs(f.Sources), ","),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"File", "Method", "Band", "Status", "Location", "Derived From"}, rows, nil))
}

func newCaptureRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [main_id...]",
		Short: "Return errored captures to the start of the stage that failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				n, err := st.RetryCaptures(runCtx, args...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if n == 0 {
					if len(args) > 0 {
						return errors.New("no matching captures are in an error state")
					}
					fmt.Fprintln(out, "No errored captures to retry")
					return nil
				}
				fmt.Fprintf(out, "Retried %d captures\n", n)
				return nil
			})
		},
	}
}

func formatCloud(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + "%"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = shortID(id)
	}
	return out
}
