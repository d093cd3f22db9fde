package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
	"github.com/sarpras-dashboard/sarpras-sync/source"
)

var validateSkipZero bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Inspect datasets without writing",
	Long: `Read the datasets (or one --input document) and report, per source, the
detected shape, record count, identity coverage (NPSN, composite, none)
and mapper outcomes. Nothing is written and no credentials are needed.

Examples:
  sarpras validate
  sarpras validate --source=local --data-dir ./data --only toilet
  sarpras validate -i rekap.xlsx --jenjang SD`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	addInputFlags(validateCmd)
	validateCmd.Flags().BoolVar(&validateSkipZero, "skip-zero", true, "Count all-zero rows as skipped, as ingest does")
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, pipeline.DriverValidate, false)
	if err != nil {
		return err
	}

	mappers, err := s.mappers.Select(onlyEntities)
	if err != nil {
		return s.finish(cmd, err)
	}

	var docs []source.Document
	if inputFile != "" {
		var doc source.Document
		doc, err = readInput(inputFile, inputFormat, inputSheet, inputJenjang)
		docs = []source.Document{doc}
	} else {
		docs, err = s.fetchSources(cmd.Context())
	}
	if err != nil {
		return s.finish(cmd, err)
	}

	reports := pipeline.Inspect(s.state, mappers, docs, validateSkipZero)
	pipeline.PrintInspection(cmd.OutOrStdout(), reports, mappers)
	return s.finish(cmd, nil)
}
