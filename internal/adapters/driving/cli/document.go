package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	ingestRecursive bool
	listJSON        bool
	showChunks      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest files or directories",
	Long: `Loads, chunks, embeds and indexes documents. Directories ingest every
supported file they contain; use --recursive to descend into subdirectories.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Remove a document and its chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", false, "descend into subdirectories")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")
	showCmd.Flags().BoolVar(&showChunks, "chunks", false, "print every chunk")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService(cmd)
	if err != nil {
		return err
	}

	var results []domain.IngestResult
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("cannot ingest %s: %w", path, err)
		}

		if info.IsDir() {
			dirResults, err := svc.IngestDirectory(cmd.Context(), path, ingestRecursive)
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %w", path, err)
			}
			results = append(results, dirResults...)
			continue
		}

		res, err := svc.IngestFile(cmd.Context(), path)
		if err != nil {
			results = append(results, domain.IngestResult{Filename: path, Errors: []string{err.Error()}})
			continue
		}
		results = append(results, *res)
	}

	failed := 0
	for i := range results {
		r := &results[i]
		if ingestFailed(r) {
			failed++
			cmd.Printf("  %s %s: %s\n", errorStyle.Render("✗"), r.Filename, r.Errors[0])
			continue
		}
		cmd.Printf("  %s %s %s\n", successStyle.Render("✓"), r.Filename,
			dimStyle.Render(fmt.Sprintf("(%s, %d chunks, %s)", r.DocumentID, r.ChunkCount, r.Duration.Round(time.Millisecond))))
	}

	cmd.Printf("\nIngested %d of %d documents\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d documents failed", failed)
	}
	return nil
}

// ingestFailed reports whether r describes a document that was not ingested,
// as opposed to one with some failed records.
func ingestFailed(r *domain.IngestResult) bool {
	return len(r.Errors) > 0 && r.ChunkCount == 0
}

func runList(cmd *cobra.Command, _ []string) error {
	svc, err := ingestionService(cmd)
	if err != nil {
		return err
	}

	docs, err := svc.ListDocuments(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if listJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}

	cmd.Println(headerStyle.Render("Documents"))
	cmd.Println()
	for i := range docs {
		d := &docs[i]
		cmd.Printf("  %s\n", titleStyle.Render(d.ID))
		cmd.Printf("    File:    %s\n", d.Filename)
		if d.Title != "" && d.Title != d.Filename {
			cmd.Printf("    Title:   %s\n", d.Title)
		}
		cmd.Printf("    Chunks:  %d\n", d.ChunkCount)
		cmd.Printf("    Created: %s\n", d.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		cmd.Println()
	}
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService(cmd)
	if err != nil {
		return err
	}

	doc, chunks, err := svc.GetDocument(cmd.Context(), args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("document %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  File:     %s\n", doc.Filename)
	if doc.Metadata.Title != "" {
		cmd.Printf("  Title:    %s\n", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "" {
		cmd.Printf("  Author:   %s\n", doc.Metadata.Author)
	}
	if doc.Metadata.PageCount > 0 {
		cmd.Printf("  Pages:    %d\n", doc.Metadata.PageCount)
	}
	if doc.Metadata.MIMEType != "" {
		cmd.Printf("  Type:     %s\n", doc.Metadata.MIMEType)
	}
	if len(doc.Metadata.Tags) > 0 {
		cmd.Printf("  Tags:     %v\n", doc.Metadata.Tags)
	}
	cmd.Printf("  Chunks:   %d\n", len(chunks))
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Local().Format("2006-01-02 15:04:05"))

	if showChunks {
		for i := range chunks {
			c := &chunks[i]
			cmd.Println()
			label := fmt.Sprintf("#%d [%d:%d]", c.Index, c.StartOffset, c.EndOffset)
			if c.Page != nil {
				label += fmt.Sprintf(" page %d", *c.Page)
			}
			cmd.Println(dimStyle.Render(label))
			cmd.Println(wrap(c.Content, 2))
		}
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService(cmd)
	if err != nil {
		return err
	}

	deleted, err := svc.DeleteDocument(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if !deleted {
		return fmt.Errorf("document %s not found", args[0])
	}
	cmd.Printf("Deleted document %s\n", args[0])
	return nil
}
