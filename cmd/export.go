package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
)

var (
	exportOut  string
	exportXLSX bool
	exportFlat []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the dashboard JSON files from the backing store",
	Long: `Page every table, join entity rows onto their school and write
<out>/<jenjang>.json grouped by kecamatan plus summary.json with per
kecamatan aggregates. --xlsx and --flat add a one-row-per-school table.

Examples:
  sarpras export --out ./public/data
  sarpras export --out ./public/data --xlsx --flat csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, pipeline.DriverExport, true)
		if err != nil {
			return err
		}

		flat := slices.Clone(exportFlat)
		if exportXLSX && !slices.Contains(flat, "xlsx") {
			flat = append(flat, "xlsx")
		}
		res, err := s.runner.Export(cmd.Context(), s.state, pipeline.ExportOptions{
			Out:  exportOut,
			Flat: flat,
		})
		if err == nil {
			for _, f := range res.Files {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f)
			}
		}
		return s.finish(cmd, err)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "public/data", "Output directory")
	exportCmd.Flags().BoolVar(&exportXLSX, "xlsx", false, "Also write sarpras.xlsx")
	exportCmd.Flags().StringSliceVar(&exportFlat, "flat", nil, "Also write sarpras.<ext> in these formats (csv, json, xlsx)")
}
