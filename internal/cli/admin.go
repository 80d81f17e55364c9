package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"document-chat/internal/models"
	"document-chat/internal/rag"
)

var resetYes bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every indexed chunk",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var deleteSourceCmd = &cobra.Command{
	Use:   "delete-source [path]",
	Short: "Remove the chunks ingested from one file",
	Args:  cobra.ExactArgs(1),
	RunE: withRAG(func(cmd *cobra.Command, r *rag.RAG, args []string) models.OperationResult {
		return r.DeleteSource(cmd.Context(), args[0])
	}),
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the collection to a snapshot file",
	Long: `Writes the collection to a gob snapshot, gzip-compressed and AES-GCM encrypted
when configured. An empty file argument uses the persist directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withRAG(func(cmd *cobra.Command, r *rag.RAG, args []string) models.OperationResult {
		return r.Export(cmd.Context(), firstArg(args))
	}),
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load the collection from a snapshot file",
	Args:  cobra.MaximumNArgs(1),
	RunE: withRAG(func(cmd *cobra.Command, r *rag.RAG, args []string) models.OperationResult {
		return r.Import(cmd.Context(), firstArg(args))
	}),
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm deleting the whole collection")
	rootCmd.AddCommand(statsCmd, resetCmd, deleteSourceCmd, exportCmd, importCmd)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func runStats(cmd *cobra.Command, _ []string) error {
	r, err := openRAG(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	stats := r.Stats(cmd.Context())
	if jsonOutput {
		printJSON(cmd, stats)
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Collection:           %s\n", stats.VectorStore.CollectionName)
		fmt.Fprintf(out, "Location:             %s\n", stats.VectorStore.Location)
		fmt.Fprintf(out, "Chunks:               %d\n", stats.VectorStore.TotalDocuments)
		fmt.Fprintf(out, "Chunk size / overlap: %d / %d\n", stats.ChunkSize, stats.ChunkOverlap)
		fmt.Fprintf(out, "Retrieval k:          %d\n", stats.RetrievalK)
		fmt.Fprintf(out, "Confidence threshold: %.2f\n", stats.ConfidenceThreshold)
	}
	if stats.Error != "" {
		return errors.New(stats.Error)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return errors.New("refusing to reset without --yes")
	}
	return withRAG(func(cmd *cobra.Command, r *rag.RAG, _ []string) models.OperationResult {
		return r.Reset(cmd.Context())
	})(cmd, args)
}

// withRAG opens the pipeline, runs op and reports its envelope
func withRAG(op func(*cobra.Command, *rag.RAG, []string) models.OperationResult) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := openRAG(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		res := op(cmd, r, args)
		if jsonOutput {
			printJSON(cmd, res)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		}
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	}
}
