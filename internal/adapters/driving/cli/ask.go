package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	askLimit int
	askMode  string
	askJSON  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieves the most relevant chunks and asks the configured LLM to answer
using only those sources. Requires an LLM provider (see 'sercha-rag config wizard').`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", domain.DefaultTopK, "number of sources to retrieve")
	askCmd.Flags().StringVarP(&askMode, "mode", "m", "", "retrieval mode (hybrid, semantic, keyword)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	svc, err := queryService(cmd)
	if err != nil {
		return err
	}

	answer, err := svc.Ask(cmd.Context(), question, domain.SearchOptions{
		Mode: domain.SearchMode(askMode),
		TopK: askLimit,
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return printJSON(cmd, answer)
	}

	cmd.Println(wrap(answer.Text, 0))
	cmd.Println()
	if len(answer.Sources) > 0 {
		cmd.Println(headerStyle.Render("Sources"))
		for i := range answer.Sources {
			s := &answer.Sources[i]
			line := fmt.Sprintf("  [%d] %s", i+1, resultName(s))
			if s.Page != nil {
				line += fmt.Sprintf(" (page %d)", *s.Page)
			}
			cmd.Println(line + " " + scoreStyle.Render(fmt.Sprintf("%.3f", s.Score)))
		}
	}
	if answer.Model != "" {
		cmd.Println(dimStyle.Render(fmt.Sprintf("\n%s, %d tokens", answer.Model, answer.TokensUsed)))
	}
	return nil
}
