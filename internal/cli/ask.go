package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"document-chat/internal/models"
)

var askK int

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieves the most similar chunks and answers only from them. When nothing
relevant enough is indexed the answer says so instead of guessing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "number of chunks to retrieve (0 uses the configured default)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	r, err := openRAG(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	resp := r.Ask(cmd.Context(), strings.Join(args, " "), askK)
	if jsonOutput {
		printJSON(cmd, resp)
	} else {
		printAnswer(cmd, resp)
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

func printAnswer(cmd *cobra.Command, resp models.ChatResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Answer)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Confidence: %.2f\n", resp.Confidence)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out, "Sources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
}
