package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDiscoverCommand(g *globalOptions) *cobra.Command {
	var (
		asJSON bool
		host   string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the block variants the authoring host exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Host.URL = host
			}

			entries := discoverCatalog(cmd.Context(), cfg.Host.URL, cfg.CatalogOptions())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintf(out, "No blocks found at %s\n", cfg.Host.URL)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BLOCK\tINDEX\tVARIATION\tPATH")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Name, e.VariationIndex, e.VariationName, e.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d variant(s)\n", len(entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	cmd.Flags().StringVar(&host, "host", "", "Authoring host URL (overrides host.url)")
	return cmd
}
