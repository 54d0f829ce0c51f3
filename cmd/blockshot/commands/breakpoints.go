package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockshot/internal/overlay"
)

func newBreakpointsCommand(g *globalOptions) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "breakpoints <component>",
		Short: "Show which baseline the overlay uses at each window width",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if index < 0 {
				return fmt.Errorf("invalid index %d", index)
			}
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			p := overlay.NewPicture(cfg.Viewports, args[0], index, "/baselines", cfg.DefaultViewport.Width)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tMEDIA\tSRCSET")
			for _, s := range p.Sources {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Label, s.Media, s.Srcset)
			}
			fmt.Fprintf(tw, "fallback\t\t%s\n", p.Fallback)
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Variation index")
	return cmd
}
