package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/watcher"
)

var (
	watchRecursive bool
	watchNoSync    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep the index in sync with a directory",
	Long: `Ingests the supported files in a directory, then watches it: new and
modified files are re-ingested and removed files are deleted from the index.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchRecursive, "recursive", "r", false, "watch subdirectories")
	watchCmd.Flags().BoolVar(&watchNoSync, "no-sync", false, "skip the initial ingest of existing files")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService(cmd)
	if err != nil {
		return err
	}

	w, err := watcher.New(svc, args[0], watcher.Options{Recursive: watchRecursive})
	if err != nil {
		return err
	}

	if !watchNoSync {
		if err := w.Sync(cmd.Context()); err != nil {
			return err
		}
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	return w.Run(cmd.Context())
}
