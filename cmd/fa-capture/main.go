// Command fa-capture documents the interface of the dummy replay/capture
// CLI tool spec §1 names as an out-of-scope external collaborator: a
// standalone utility that feeds a prerecorded frame file into a running
// archiver's frame source for testing. It is a stub, not an implementation
// — see source.Replay, the in-process side of this same boundary.
package main

import (
	"fmt"
	"os"

	"github.com/dls-controls/fa-archiver/source"
	"github.com/spf13/cobra"
)

func main() {
	var path string
	root := &cobra.Command{
		Use:   "fa-capture",
		Short: "replay a captured frame file into an archiver (out of scope; stub)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := source.NewReplay(path)
			if err := r.Initialise(); err != nil {
				return err
			}
			return fmt.Errorf("fa-capture: %w", source.ErrOutOfScope)
		},
	}
	root.Flags().StringVar(&path, "file", "", "path to the captured frame file to replay")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
