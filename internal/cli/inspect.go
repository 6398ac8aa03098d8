package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sergimayol/sqlite-virtual-url/internal/engine"
	"github.com/Sergimayol/sqlite-virtual-url/internal/reader"
)

// InspectResult is the JSON form of an inspected payload.
type InspectResult struct {
	URL     string         `json:"url"`
	Format  string         `json:"format"`
	Rows    int64          `json:"rows_sampled"`
	Bytes   int64          `json:"bytes_read"`
	Columns []InspectField `json:"columns"`
}

// InspectField describes one discovered column.
type InspectField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var formatName string

	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Fetch a dataset and print its discovered schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), cmd, rootOpts, args[0], formatName)
		},
	}
	cmd.Flags().StringVarP(&formatName, "type", "t", "csv", "payload format (csv|avro|parquet|json|jsonl)")

	return cmd
}

func runInspect(ctx context.Context, cmd *cobra.Command, opts *RootOptions, url, formatName string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := reader.ParseFormat(formatName)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg.Fetch.AllowLocal = true

	data, err := engine.NewFetcher(cfg).Fetch(ctx, url)
	if err != nil {
		return err
	}
	r, err := reader.New(format, data, engine.SampleRows(cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format != "json" {
		fmt.Fprint(out, reader.Describe(r))
		return nil
	}

	res := InspectResult{
		URL:     url,
		Format:  r.Format().String(),
		Rows:    r.TotalRows(),
		Bytes:   r.BytesRead(),
		Columns: make([]InspectField, 0, r.TotalColumns()),
	}
	for _, f := range r.Schema().Fields {
		res.Columns = append(res.Columns, InspectField{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
