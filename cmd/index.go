package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aulalab/maisa/internal/app"
	"github.com/aulalab/maisa/internal/config"
	"github.com/aulalab/maisa/internal/ingest"
	"github.com/aulalab/maisa/internal/knowledge"
)

var indexCmd = &cobra.Command{
	Use:   "index <handbook.pdf>",
	Short: "Index a course handbook PDF into the knowledge store",
	Long: `Index splits the handbook into sections on its heading fonts,
embeds each section, and upserts it into PostgreSQL. Re-running on the
same file updates sections in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lines, err := ingest.ExtractLines(path)
	if err != nil {
		return err
	}

	// Source is the base name so moving the file does not orphan rows.
	source := filepath.Base(path)
	sections := ingest.Sectionise(lines, source)
	if len(sections) == 0 {
		return fmt.Errorf("no sections found in %q: expected %s headings", path, "MyriadPro-Black")
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	for i, sec := range sections {
		doc := knowledge.Document{
			ID:       sec.ID(i),
			Title:    sec.Title,
			Content:  sec.Content,
			Keywords: sec.Keywords,
			Source:   sec.Source,
		}
		if err := a.Knowledge.Add(ctx, doc); err != nil {
			return fmt.Errorf("indexing section %q: %w", sec.Title, err)
		}
		fmt.Printf("indexed %q (%d keywords)\n", sec.Title, len(sec.Keywords))
	}

	total, err := a.Knowledge.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting sections: %w", err)
	}
	fmt.Printf("done: %d sections from %s, %d total in store\n", len(sections), source, total)
	return nil
}
