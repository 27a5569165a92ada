package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"earthgazer/internal/config"
	"earthgazer/internal/locations"
	"earthgazer/internal/store"
)

func newLocationCommand(ctx *commandContext) *cobra.Command {
	locationCmd := &cobra.Command{
		Use:   "location",
		Short: "Manage monitored locations",
	}
	locationCmd.AddCommand(newLocationAddCommand(ctx))
	locationCmd.AddCommand(newLocationListCommand(ctx))
	locationCmd.AddCommand(newLocationImportCommand(ctx))
	locationCmd.AddCommand(newLocationToggleCommand(ctx, "activate", true))
	locationCmd.AddCommand(newLocationToggleCommand(ctx, "deactivate", false))
	locationCmd.AddCommand(newLocationRemoveCommand(ctx))
	return locationCmd
}

func newLocationAddCommand(ctx *commandContext) *cobra.Command {
	var rec locations.Record
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a monitored location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.Name = args[0]
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
				return fmt.Errorf("--lat and --lon are required")
			}
			if inactive {
				active := false
				rec.Active = &active
			}
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				loc, err := locations.Add(runCtx, st, rec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added location %s (%.6f, %.6f)\n", locations.DisplayName(loc.Name), loc.Latitude, loc.Longitude)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&rec.Latitude, "lat", 0, "Latitude in decimal degrees")
	cmd.Flags().Float64Var(&rec.Longitude, "lon", 0, "Longitude in decimal degrees")
	cmd.Flags().StringVar(&rec.Description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&rec.Start, "start", "", "Monitoring window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&rec.End, "end", "", "Monitoring window end (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Add the location without monitoring it")
	return cmd
}

func newLocationListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitored locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				all, err := st.ListLocations(runCtx, activeOnly)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(all) == 0 {
					fmt.Fprintln(out, "No locations configured")
					return nil
				}
				rows := make([][]string, 0, len(all))
				for _, loc := range all {
					rows = append(rows, []string{
						loc.Name,
						locations.DisplayName(loc.Name),
						strconv.FormatFloat(loc.Latitude, 'f', 6, 64),
						strconv.FormatFloat(loc.Longitude, 'f', 6, 64),
						loc.MonitoringStart.Format(locations.DateLayout) + " → " + loc.MonitoringEnd.Format(locations.DateLayout),
						yesNo(loc.Active),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Name", "Display", "Latitude", "Longitude", "Window", "Active"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active locations")
	return cmd
}

func newLocationImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import locations from a CSV file with a header row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()
			records, err := locations.Decode(f)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				summary, err := locations.Import(runCtx, st, records)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d locations (%d already present)\n", summary.Added, summary.Skipped)
				return nil
			})
		},
	}
}

func newLocationToggleCommand(ctx *commandContext, use string, active bool) *cobra.Command {
	short := "Resume monitoring a location"
	if !active {
		short = "Stop monitoring a location without deleting it"
	}
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				if err := st.SetLocationActive(runCtx, args[0], active); err != nil {
					return err
				}
				state := "active"
				if !active {
					state = "inactive"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Location %s is now %s\n", args[0], state)
				return nil
			})
		},
	}
}

func newLocationRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a location; its captures are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(runCtx context.Context, st *store.Store) error {
				if err := st.DeleteLocation(runCtx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed location %s\n", args[0])
				return nil
			})
		},
	}
}
