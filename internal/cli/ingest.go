package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"document-chat/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [folder|file]",
	Short: "Index documents into the knowledge base",
	Long: `Extracts text from every supported document under a folder (recursively) or
from a single file, splits it into overlapping chunks and stores their embeddings.
Files that cannot be parsed are skipped and listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	r, err := openRAG(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	var res models.IngestResult
	if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
		res = r.IngestFile(cmd.Context(), args[0])
	} else {
		res = r.IngestFolder(cmd.Context(), args[0])
	}

	if jsonOutput {
		printJSON(cmd, res)
	} else {
		printIngest(cmd, res)
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

func printIngest(cmd *cobra.Command, res models.IngestResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Message)
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.Path, s.Reason)
	}
	if res.Success {
		fmt.Fprintf(out, "Collection %s now holds %d chunks (%s)\n",
			res.Stats.CollectionName, res.Stats.TotalDocuments, res.Stats.ProcessingTime.Round(time.Millisecond))
	}
}
