package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	searchLimit    int
	searchMode     string
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Searches the indexed documents and prints the ranked chunks.

Modes:
  hybrid   - semantic similarity plus keyword relevance (default)
  semantic - vector similarity only
  keyword  - fuzzy keyword matching only`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultTopK, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "", "search mode (hybrid, semantic, keyword)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results scoring below this value")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	svc, err := queryService(cmd)
	if err != nil {
		return err
	}

	opts := domain.SearchOptions{
		Mode:     domain.SearchMode(searchMode),
		TopK:     searchLimit,
		MinScore: searchMinScore,
	}

	results, err := svc.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, results)
	}
	printResults(cmd, results)
	return nil
}

func printResults(cmd *cobra.Command, results []domain.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println(headerStyle.Render(fmt.Sprintf("Results (%d)", len(results))))
	cmd.Println()
	for i := range results {
		r := &results[i]
		cmd.Printf("  [%d] %s %s\n", i+1, titleStyle.Render(resultName(r)), scoreStyle.Render(fmt.Sprintf("(%.3f)", r.Score)))

		location := r.DocumentID
		if r.Page != nil {
			location += fmt.Sprintf(", page %d", *r.Page)
		}
		cmd.Println(dimStyle.Render("      " + location))
		cmd.Println(wrap(snippet(r.Text, snippetChars), 6))
		cmd.Println()
	}
}

func resultName(r *domain.SearchResult) string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Metadata.Filename != "":
		return r.Metadata.Filename
	default:
		return r.ChunkID
	}
}
