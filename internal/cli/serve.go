package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/fractaliser/pkg/server"
	"github.com/matzehuels/fractaliser/pkg/session"
)

// serveCommand creates the HTTP server command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render pipeline over HTTP",
		Long: `Serve the render pipeline over HTTP.

  POST   /api/render                 one-shot render of a multipart "image"
  POST   /api/sessions               upload an image and start an editor session
  GET    /api/sessions/{id}          session state
  PATCH  /api/sessions/{id}/params   change slices, blur or brightness
  PATCH  /api/sessions/{id}/viewport change the container size
  POST   /api/sessions/{id}/reset    restore the default parameters
  GET    /api/sessions/{id}/download the current result as PNG
  DELETE /api/sessions/{id}          end a session

The server stops gracefully on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			runner := c.newRunner(cmd.Context(), cfg, noCache)
			defer runner.Close()

			opts := cfg.PipelineOptions()
			opts.Logger = c.Logger
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}

			srv := server.New(runner, session.NewMemoryStore(), server.Config{
				Addr:           cfg.Server.Addr,
				MaxUploadBytes: cfg.MaxUploadBytes(),
				SessionTTL:     cfg.Server.SessionTTL.Duration,
				Options:        opts,
			}, c.Logger.WithPrefix("http"))

			printInfo("Serving on %s", StyleHighlight.Render(cfg.Server.Addr))
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}
