package cli

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fractaliser/pkg/observability"
	"github.com/matzehuels/fractaliser/pkg/render/sink"
	"github.com/matzehuels/fractaliser/pkg/source"
)

// editCommand creates the interactive editor command.
func (c *CLI) editCommand() *cobra.Command {
	var (
		flags   renderFlags
		output  string
		logFile string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "edit [image]",
		Short: "Tune an image interactively in the terminal",
		Long: `Open an image in a live terminal preview.

Keys:
  ←/→ or h/l   adjust the selected control
  ↑/↓ or k/j   select slices, blur or brightness
  r            reset to slices 25, blur 0, brightness 100
  d            download the full-size PNG to --output
  i            show or hide the info panel
  q            quit

The terminal is taken over while editing, so logs go to --log-file (or
nowhere).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.PipelineOptions()
			flags.apply(cmd, &opts)
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}

			logger, closeLog, err := c.editorLogger(logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			opts.Logger = logger

			runner := c.newRunner(cmd.Context(), cfg, noCache)
			defer runner.Close()
			runner.Logger = logger

			ctx := cmd.Context()
			future := source.LoadAsync(ctx, args[0])
			model := NewEditorModel(ctx, runner, future, args[0], opts, output)

			final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if err != nil {
				return fmt.Errorf("editor: %w", err)
			}
			if m, ok := final.(EditorModel); ok && m.src == nil && m.Err() != nil {
				return m.Err()
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", sink.DefaultFilename, "download path")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file while editing")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

// editorLogger returns the logger used while the editor owns the terminal.
// It keeps the CLI's level; at debug level the observability hooks follow it.
func (c *CLI) editorLogger(path string) (*log.Logger, func(), error) {
	var w io.Writer = io.Discard
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	logger := newLogger(w, c.Logger.GetLevel())
	if logger.GetLevel() <= log.DebugLevel {
		hooks := observability.NewLogHooks(logger)
		observability.SetPipelineHooks(hooks)
		observability.SetCacheHooks(hooks)
	}
	return logger, closeFn, nil
}
