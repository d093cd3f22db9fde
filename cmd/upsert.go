package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarpras-dashboard/sarpras-sync/mapping"
	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
)

var (
	inputFile    string
	inputFormat  string
	inputSheet   string
	inputJenjang string
	profileName  string
	profileFile  string
	genericTable string
	conflictKey  string
)

var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Merge one document into the selected entity tables",
	Long: `Parse one local document (JSON, NDJSON, GeoJSON, CSV or XLSX), resolve its
schools in one batched lookup and merge the --only entities (default: all).
The input is always a local file; --source and --dataset do not apply.

Examples:
  sarpras upsert -i smp.json --jenjang SMP --only laboratory
  sarpras upsert -i rekap.xlsx --sheet Toilet --only toilet`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, pipeline.DriverUpsert, true)
		if err != nil {
			return err
		}

		doc, err := readInput(inputFile, inputFormat, inputSheet, inputJenjang)
		if err == nil {
			_, err = s.runner.Upsert(cmd.Context(), s.state, doc, onlyEntities)
		}
		return s.finish(cmd, err)
	},
}

var upsertGenericCmd = &cobra.Command{
	Use:   "upsert-generic",
	Short: "Merge one document into any table described by a mapping profile",
	Long: `Every field of the mapping profile becomes a column; school_id is attached
through identity resolution. Records missing a required field are skipped. The input is
always a local file.

Examples:
  sarpras upsert-generic -i internet.csv --profile-file internet.yaml
  sarpras upsert-generic -i data.json --profile library --table libraries_2024 --conflict school_id`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (profileName == "") == (profileFile == "") {
			return errors.New("exactly one of --profile or --profile-file is required")
		}
		s, err := openSession(cmd, pipeline.DriverUpsertGeneric, true)
		if err != nil {
			return err
		}

		var p *mapping.Profile
		if profileFile != "" {
			p, err = mapping.LoadProfile(profileFile)
			if err == nil {
				err = p.Validate()
			}
		} else {
			p, err = s.profiles.MustGet(profileName)
		}
		if err != nil {
			return s.finish(cmd, fmt.Errorf("loading profile: %w", err))
		}

		doc, err := readInput(inputFile, inputFormat, inputSheet, inputJenjang)
		if err == nil {
			_, err = s.runner.UpsertGeneric(cmd.Context(), s.state, doc, pipeline.GenericOptions{
				Profile:  p,
				Table:    genericTable,
				Conflict: conflictKey,
			})
		}
		return s.finish(cmd, err)
	},
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input document")
	cmd.Flags().StringVarP(&inputFormat, "format", "f", "", "Input format (default: detected)")
	cmd.Flags().StringVar(&inputSheet, "sheet", "", "Worksheet of an XLSX input (default: first)")
	cmd.Flags().StringVar(&inputJenjang, "jenjang", "", "Jenjang of the input: PAUD, SD, SMP or PKBM")
}

func init() {
	addInputFlags(upsertCmd)
	addInputFlags(upsertGenericCmd)
	upsertGenericCmd.Flags().StringVarP(&profileName, "profile", "p", "", "Mapping profile name")
	upsertGenericCmd.Flags().StringVar(&profileFile, "profile-file", "", "Custom profile YAML file")
	upsertGenericCmd.Flags().StringVar(&genericTable, "table", "", "Target table (default: the profile table)")
	upsertGenericCmd.Flags().StringVar(&conflictKey, "conflict", "", "Conflict columns (default: the profile conflict key)")
}
