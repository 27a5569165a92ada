package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlatformsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List known platforms, their bands and composites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			monitored := make(map[string]bool, len(cfg.Platforms.Monitored))
			for _, name := range cfg.Platforms.Monitored {
				monitored[strings.ToUpper(name)] = true
			}
			rows := make([][]string, 0, len(registry.Names()))
			for _, name := range registry.Names() {
				p, _ := registry.Get(name)
				composites := make([]string, 0, len(p.Composites))
				for _, cname := range p.CompositeNames() {
					bands, _ := p.Composite(cname)
					composites = append(composites, fmt.Sprintf("%s=%s", cname, strings.Join(bands, "/")))
				}
				isMonitored := len(cfg.Platforms.Monitored) == 0 || monitored[name]
				rows = append(rows, []string{
					name,
					strings.Join(p.Missions, ","),
					strings.Join(p.Bands, " "),
					strings.Join(composites, " "),
					yesNo(isMonitored),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Platform", "Missions", "Bands", "Composites", "Monitored"}, rows, nil))
			return nil
		},
	}
}
