package main

import (
	"github.com/sarpras-dashboard/sarpras-sync/cmd"

	// Register format plugins
	_ "github.com/sarpras-dashboard/sarpras-sync/format/csv"
	_ "github.com/sarpras-dashboard/sarpras-sync/format/jsondoc"
	_ "github.com/sarpras-dashboard/sarpras-sync/format/xlsx"
)

func main() {
	cmd.Execute()
}
