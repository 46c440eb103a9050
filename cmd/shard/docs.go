package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docsCmd = &cobra.Command{
	Use:    "gen-docs",
	Short:  "Generate CLI reference pages",
	Hidden: true,
	RunE:   runGenDocs,
}

func init() {
	docsCmd.Flags().String("dir", "docs", "directory to write pages into")
	docsCmd.Flags().String("format", "markdown", "page format: markdown or man")
}

func runGenDocs(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	format, _ := cmd.Flags().GetString("format")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	switch format {
	case "markdown":
		return doc.GenMarkdownTree(cmd.Root(), dir)
	case "man":
		header := &doc.GenManHeader{
			Title:   "SHARD",
			Section: "1",
			Source:  "shard " + version,
			Manual:  "Shard Manual",
		}
		return doc.GenManTree(cmd.Root(), header, dir)
	default:
		return fmt.Errorf("unsupported format %q: want markdown or man", format)
	}
}
