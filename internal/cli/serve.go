package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sergimayol/sqlite-virtual-url/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		httpAddr   string
		grpcAddr   string
		dataDir    string
		allowLocal bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API and the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if grpcAddr != "" {
				cfg.GRPC.Addr = grpcAddr
			}
			if allowLocal {
				cfg.Fetch.AllowLocal = true
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := application.Start(ctx); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "urlvtab %s serving HTTP on %s\n", Version, application.HTTPAddr())
			return application.WaitForShutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP address of the query API")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC health service address")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "base directory for stored tables")
	cmd.Flags().BoolVar(&allowLocal, "allow-local", false, "let queries read file:// URLs and local paths")

	return cmd
}
