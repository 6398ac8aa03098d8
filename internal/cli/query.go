package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sergimayol/sqlite-virtual-url/internal/engine"
)

// NewQueryCommand creates the query command. Each argument is one
// statement, run in order against the same host database.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>...",
		Short: "Run SQL statements against the host database",
		Example: `  urlvtab query \
    "CREATE VIRTUAL TABLE IF NOT EXISTS iris USING url('https://example.com/iris.csv', 'csv')" \
    "SELECT species, COUNT(*) FROM iris GROUP BY species"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runQuery(ctx, cmd, rootOpts, args)
		},
	}
	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, opts *RootOptions, statements []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg.Fetch.AllowLocal = true
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		res, err := eng.Execute(ctx, stmt)
		if err != nil {
			return err
		}
		if len(res.Columns) == 0 {
			continue
		}
		if err := writeResult(cmd.OutOrStdout(), opts.Format, table{Columns: res.Columns, Rows: res.Rows}); err != nil {
			return err
		}
	}
	return nil
}
