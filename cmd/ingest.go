package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
	"github.com/sarpras-dashboard/sarpras-sync/syncer"
)

var (
	ingestMerge   bool
	ingestReplace bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch every dataset and sync all entities",
	Long: `Fetch the catalog datasets in parallel, resolve school identities once,
map every selected entity and sync each table.

Rows whose counts are all zero are not written, so a zero-filled source
never overwrites a previously good value.

Merge mode (default) upserts on each table's conflict key and never
overwrites a stored value with an empty one. Replace mode deletes every row
of the schools present in the input, then inserts; a failed insert after
the delete leaves those schools without rows and is reported, not undone.

Examples:
  sarpras ingest
  sarpras ingest --only toilet,laboratory --replace
  sarpras ingest --source=local --data-dir ./data --dry-run`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestMerge, "merge", false, "Upsert on the conflict key (default)")
	ingestCmd.Flags().BoolVar(&ingestReplace, "replace", false, "Delete the rows of every school in the input, then insert")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestMerge && ingestReplace {
		return errors.New("--merge and --replace are mutually exclusive")
	}
	mode := syncer.ModeMerge
	if ingestReplace {
		mode = syncer.ModeReplace
	}

	s, err := openSession(cmd, pipeline.DriverIngest, true)
	if err != nil {
		return err
	}

	docs, err := s.fetchSources(cmd.Context())
	if err == nil {
		_, err = s.runner.Ingest(cmd.Context(), s.state, docs, pipeline.SyncOptions{
			Only:     onlyEntities,
			Mode:     mode,
			SkipZero: true,
		})
	}
	return s.finish(cmd, err)
}
