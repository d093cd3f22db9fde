package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
	"github.com/sarpras-dashboard/sarpras-sync/syncer"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create schools from the datasets, then sync every entity",
	Long: `Upsert one schools row per NPSN found in the datasets, then resolve
identities again and sync every selected entity in merge mode.

Records without an NPSN cannot create a school and are skipped.

With --dry-run the new schools are not visible to the entity sync, so
only schools that already exist receive rows.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, pipeline.DriverSeed, true)
		if err != nil {
			return err
		}

		docs, err := s.fetchSources(cmd.Context())
		if err == nil {
			_, err = s.runner.Seed(cmd.Context(), s.state, docs, pipeline.SyncOptions{
				Only: onlyEntities,
				Mode: syncer.ModeMerge,
			})
		}
		return s.finish(cmd, err)
	},
}
