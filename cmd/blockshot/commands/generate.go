package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockshot/internal/catalog"
	"github.com/livetemplate/blockshot/internal/synth"
)

// ErrOutOfDate is returned by generate --check when the committed file
// differs from what would be generated.
var ErrOutOfDate = errors.New("generated visual tests are out of date; run blockshot generate")

func newGenerateCommand(g *globalOptions) *cobra.Command {
	var (
		check bool
		out   string
		host  string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the visual test file from the live catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if out != "" {
				cfg.Generate.Output = out
			}
			if host != "" {
				cfg.Host.URL = host
			}
			opts, err := cfg.SynthOptions()
			if err != nil {
				return err
			}
			discover := func(ctx context.Context) []catalog.Entry {
				return discoverCatalog(ctx, cfg.Host.URL, cfg.CatalogOptions())
			}
			w := cmd.OutOrStdout()

			if check {
				entries := discover(cmd.Context())
				if len(entries) == 0 {
					return synth.ErrNothingGenerated
				}
				src, err := synth.Synthesize(entries, cfg.Viewports, opts)
				if err != nil {
					return err
				}
				diff, err := synth.Check(cfg.Generate.Output, src)
				if err != nil {
					return err
				}
				if diff != "" {
					fmt.Fprint(w, diff)
					return ErrOutOfDate
				}
				fmt.Fprintf(w, "✅ %s is up to date\n", cfg.Generate.Output)
				return nil
			}

			n, err := synth.Generate(cmd.Context(), discover, cfg.Generate.Output, cfg.Viewports, opts)
			if errors.Is(err, synth.ErrNothingGenerated) {
				fmt.Fprintf(w, "No blocks found at %s; nothing generated\n", cfg.Host.URL)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "✅ Generated %d case(s) for %d variant(s) in %s\n",
				n*len(cfg.Viewports), n, cfg.Generate.Output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Fail with a diff if the generated file is stale")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (overrides generate.output)")
	cmd.Flags().StringVar(&host, "host", "", "Authoring host URL (overrides host.url)")
	return cmd
}
