package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"document-chat/internal/models"
)

var (
	searchLimit  int
	searchSource string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List indexed file names",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "", "only show results whose file path contains this text")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	r, err := openRAG(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	results := r.Search(cmd.Context(), strings.Join(args, " "), searchLimit, searchSource)
	if jsonOutput {
		printJSON(cmd, results)
		return nil
	}
	printSearch(cmd, results)
	return nil
}

func printSearch(cmd *cobra.Command, results []models.SearchResult) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}

	fmt.Fprintln(out, "Results:")
	fmt.Fprintln(out)
	for i, res := range results {
		fmt.Fprintf(out, "  [%d] %s (%.3f)\n", i+1, strings.Join(res.Citations, " "), res.SimilarityScore)
		fmt.Fprintf(out, "      %s\n", excerpt(res.Content, 160))
		fmt.Fprintln(out)
	}
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + models.Ellipsis
}

func runSources(cmd *cobra.Command, _ []string) error {
	r, err := openRAG(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	sources := r.AvailableSources(cmd.Context())
	if jsonOutput {
		printJSON(cmd, sources)
		return nil
	}
	out := cmd.OutOrStdout()
	if len(sources) == 0 {
		fmt.Fprintln(out, "No documents indexed.")
		return nil
	}
	for _, s := range sources {
		fmt.Fprintln(out, s)
	}
	return nil
}
