package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
)

// outputSuffix is appended to the input base name for derived output paths.
const outputSuffix = "-fractalised.png"

// renderFlags holds the command-line flags shared by render and edit.
// Only flags the user set override the config file.
type renderFlags struct {
	slices        int
	blur          float64
	brightness    int
	width         float64
	height        float64
	scale         float64
	interpolation string
	kernel        string
	overflow      string
	compression   string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVarP(&f.slices, "slices", "n", 0, "slice count, 10-100 (default from config, 25)")
	flags.Float64VarP(&f.blur, "blur", "b", 0, "blur radius in pixels, 0-10")
	flags.IntVar(&f.brightness, "brightness", 0, "brightness percent, 0-200 (default from config, 100)")
	flags.Float64Var(&f.width, "width", 0, "viewport width (default: source width)")
	flags.Float64Var(&f.height, "height", 0, "viewport height (default: source height)")
	flags.Float64Var(&f.scale, "scale", 0, "device pixel ratio (default 1)")
	flags.StringVar(&f.interpolation, "interpolation", "", "slice sampling: nearest, bilinear (default), catmullrom")
	flags.StringVar(&f.kernel, "kernel", "", "blur kernel: box (default), gaussian")
	flags.StringVar(&f.overflow, "overflow", "", "brightness overflow: clamp (default), wrap")
	flags.StringVar(&f.compression, "compression", "", "PNG compression: default, none, speed, best")

	fixed := func(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp)
	}
	_ = cmd.RegisterFlagCompletionFunc("interpolation", fixed("nearest", "bilinear", "catmullrom"))
	_ = cmd.RegisterFlagCompletionFunc("kernel", fixed("box", "gaussian"))
	_ = cmd.RegisterFlagCompletionFunc("overflow", fixed("clamp", "wrap"))
	_ = cmd.RegisterFlagCompletionFunc("compression", fixed("default", "none", "speed", "best"))
	cmd.ValidArgsFunction = completeImages
}

// completeImages offers only files with a decodable image extension.
func completeImages(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return []string{"jpg", "jpeg", "png"}, cobra.ShellCompDirectiveFilterFileExt
}

// apply overlays the flags the user set on opts.
func (f *renderFlags) apply(cmd *cobra.Command, opts *pipeline.Options) {
	changed := cmd.Flags().Changed
	if changed("slices") {
		opts.Params.SliceCount = f.slices
	}
	if changed("blur") {
		opts.Params.BlurRadius = f.blur
	}
	if changed("brightness") {
		opts.Params.BrightnessPercent = f.brightness
	}
	if changed("width") {
		opts.Viewport.Width = f.width
	}
	if changed("height") {
		opts.Viewport.Height = f.height
	}
	if changed("scale") {
		opts.Viewport.PixelRatio = f.scale
	}
	if changed("interpolation") {
		opts.Interpolation = f.interpolation
	}
	if changed("kernel") {
		opts.BlurKernel = f.kernel
	}
	if changed("overflow") {
		opts.Overflow = f.overflow
	}
	if changed("compression") {
		opts.Compression = f.compression
	}
}

// renderCommand creates the batch render command.
func (c *CLI) renderCommand() *cobra.Command {
	var (
		flags   renderFlags
		output  string
		jobs    int
		noCache bool
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "render [image...]",
		Short: "Fractalise images to PNG",
		Long: `Fractalise one or more JPEG or PNG images.

Each image is fitted into the viewport (the source size unless --width and
--height are given), cut into --slices vertical strips that are redrawn with
a progressive leftward shift, then blurred and brightened.

With a single input, --output names the PNG file. With several inputs it
names a directory. Without --output each result is written next to its
input as <name>-fractalised.png.

Results are cached, so re-rendering an unchanged image with the same
settings is instant. Use --refresh to force a re-render.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.PipelineOptions()
			flags.apply(cmd, &opts)
			opts.Refresh = refresh
			opts.Logger = c.Logger
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}

			runner := c.newRunner(cmd.Context(), cfg, noCache)
			defer runner.Close()

			return c.runRender(cmd.Context(), runner, args, opts, output, jobs)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (single input) or directory (multiple)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", defaultJobs, "number of images rendered concurrently")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached results (still stores fresh ones)")

	return cmd
}

// renderJob is one input and what became of it.
type renderJob struct {
	input    string
	output   string
	result   *pipeline.Result
	duration time.Duration
	err      error
}

// runRender renders every input with at most jobs in flight. One failing
// input does not stop the others; the batch fails if any input failed.
func (c *CLI) runRender(ctx context.Context, runner *pipeline.Runner, inputs []string, opts pipeline.Options, output string, jobs int) error {
	batch := make([]renderJob, len(inputs))
	claimed := make(map[string]string, len(inputs))
	for i, in := range inputs {
		out, err := outputPath(in, output, len(inputs) > 1)
		if err == nil {
			// Inputs with the same base name in different directories would
			// otherwise overwrite each other's output.
			key := filepath.Clean(out)
			if first, ok := claimed[key]; ok {
				err = errors.New(errors.ErrCodeInvalidPath, "output %s is already written by %s", out, first)
			} else {
				claimed[key] = in
			}
		}
		batch[i] = renderJob{input: in, output: out, err: err}
	}
	if len(inputs) > 1 && output != "" {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	spinner := newSpinnerWithContext(ctx, renderingMessage(0, len(inputs)))
	spinner.Start()
	prog := newProgress(c.Logger)

	var finished atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i := range batch {
		job := &batch[i]
		if job.err != nil {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			job.result, job.err = c.renderOne(gctx, runner, job.input, job.output, opts)
			job.duration = time.Since(start)
			spinner.SetMessage("%s", renderingMessage(int(finished.Add(1)), len(inputs)))
			// Cancellation is the only error that should stop the batch.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	err := g.Wait()
	spinner.Stop()
	if err != nil {
		return err
	}

	failed := 0
	for _, job := range batch {
		if job.err != nil {
			failed++
		}
	}

	if len(batch) == 1 {
		job := batch[0]
		if job.err != nil {
			printError("Render failed")
			return job.err
		}
		printRendered(job)
		printNewline()
		printNextStep("Tune interactively", appName+" edit "+job.input)
		return nil
	}

	fmt.Fprintln(stdout, summaryTable(batch))
	if failed > 0 {
		for _, job := range batch {
			if job.err != nil {
				printError("%s: %s", job.input, errors.UserMessage(job.err))
			}
		}
		return fmt.Errorf("%d of %d renders failed", failed, len(batch))
	}
	prog.done(fmt.Sprintf("Rendered %d images", len(batch)))
	return nil
}

// renderOne loads, renders and writes a single image.
func (c *CLI) renderOne(ctx context.Context, runner *pipeline.Runner, input, output string, opts pipeline.Options) (*pipeline.Result, error) {
	logger := loggerFromContext(ctx).With("file", input)
	opts.Logger = logger

	src, err := runner.Load(ctx, input)
	if err != nil {
		return nil, err
	}
	res, err := runner.Execute(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	if len(res.PNG) == 0 {
		logger.Warn("nothing to write, surface is empty")
		return res, nil
	}
	if err := os.WriteFile(output, res.PNG, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", output, err)
	}
	logger.Debug("wrote output", "path", output, "bytes", len(res.PNG))
	return res, nil
}

// outputPath picks where the render of input goes. For a batch, output is
// a directory; otherwise it is the file itself.
func outputPath(input, output string, batch bool) (string, error) {
	derived := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + outputSuffix
	var path string
	switch {
	case output == "":
		path = filepath.Join(filepath.Dir(input), derived)
	case batch:
		path = filepath.Join(output, derived)
	default:
		path = output
	}
	if err := errors.ValidateOutputPath(path); err != nil {
		return "", err
	}
	return path, nil
}

func renderingMessage(done, total int) string {
	if total == 1 {
		return "Rendering..."
	}
	return fmt.Sprintf("Rendering %d/%d...", done, total)
}

func printRendered(job renderJob) {
	res := job.result
	if len(res.PNG) == 0 {
		printWarning("Nothing rendered: the surface is empty")
		return
	}
	printSuccess("Render complete")
	printFile(job.output)
	printStats(res.Width, res.Height, res.Stats.Slices, res.CacheInfo.RenderHit)
}

func summaryTable(batch []renderJob) string {
	rows := make([][]string, 0, len(batch))
	for _, job := range batch {
		if job.err != nil {
			rows = append(rows, []string{
				filepath.Base(job.input), "—", "—",
				StyleError.Render(iconError + " failed"),
				"—", "—",
			})
			continue
		}
		res := job.result
		rows = append(rows, []string{
			filepath.Base(job.input),
			fmt.Sprintf("%dx%d", res.Width, res.Height),
			fmt.Sprint(res.Stats.Slices),
			cacheLabel(res.CacheInfo.RenderHit),
			job.duration.Round(time.Millisecond).String(),
			job.output,
		})
	}
	return renderTable([]string{"Image", "Size", "Slices", "Cache", "Time", "Output"}, rows)
}
