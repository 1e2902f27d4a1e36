package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/render/shard"
)

// infoCommand creates the info command, which reports what a render of an
// image would produce without rendering it.
func (c *CLI) infoCommand() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "info [image]",
		Short: "Show image details and the surface a render would produce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.PipelineOptions()
			flags.apply(cmd, &opts)
			opts.Logger = c.Logger
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}

			runner := c.newRunner(cmd.Context(), cfg, true)
			defer runner.Close()
			src, err := runner.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			vp := opts.ViewportFor(src.Width, src.Height)
			rect, w, h := render.SurfaceSize(src.Width, src.Height, vp)
			plan := shard.NewPlan(opts.Params.SliceCount, float64(src.Width), float64(w))

			fmt.Fprintln(stdout, StyleTitle.Render(src.Name))
			printKeyValue("Format", string(src.Format))
			printKeyValue("Dimensions", fmt.Sprintf("%dx%d", src.Width, src.Height))
			printKeyValue("File size", formatBytes(int(src.Size)))
			printKeyValue("SHA-256", src.Hash[:16]+"…")
			printNewline()
			printKeyValue("Viewport", fmt.Sprintf("%gx%g @%gx", vp.Width, vp.Height, vp.Ratio()))
			printKeyValue("Fit", fmt.Sprintf("%.1fx%.1f at (%.1f, %.1f)", rect.Width, rect.Height, rect.X, rect.Y))
			printKeyValue("Surface", fmt.Sprintf("%dx%d", w, h))
			printKeyValue("Params", opts.String())
			if len(plan.Slices) > 0 {
				last := plan.Slices[len(plan.Slices)-1]
				printKeyValue("Slice", fmt.Sprintf("%.2f px source, %.2f px band", plan.SliceWidth(), plan.BandWidth()))
				printKeyValue("Max shift", fmt.Sprintf("%.1f px (slice %d samples from x=%.1f)", plan.Shift(last.Index), last.Index, last.Src.X))
			} else {
				printWarning("Empty surface: nothing would be drawn")
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
