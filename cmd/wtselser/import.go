package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/wtselser/internal/importer"
	"github.com/dgallion1/wtselser/internal/pipeline"
)

func importCmd(g *globalFlags) *cobra.Command {
	var (
		output     string
		scrub      bool
		noFallback bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Convert a document to wikitext",
		Long: `Convert a document to wikitext.

Supported formats: .txt, .md, .markdown, .csv, .html, .htm, .docx, .pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log := g.logger(cmd.ErrOrStderr())

			imp, err := importer.ForFile(path, importer.Options{PDFFallbackPdftotext: !noFallback})
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := imp.Import(f, path)
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}

			tpl, err := g.provider(log)
			if err != nil {
				return err
			}
			conv := pipeline.NewConverter(pipeline.ConverterConfig{RTTestMode: g.rtTestMode}, tpl, nil, nil, nil, log)
			out, err := conv.ConvertDocument(cmd.Context(), doc.Doc, scrub)
			if err != nil {
				return err
			}
			log.Info("imported", "title", doc.Title, "bytes", len(out.Wikitext))

			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), out.Wikitext)
				return nil
			}
			if err := os.WriteFile(output, []byte(out.Wikitext+"\n"), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write wikitext to this file instead of stdout")
	cmd.Flags().BoolVar(&scrub, "scrub", false, "Normalize the imported DOM before serializing")
	cmd.Flags().BoolVar(&noFallback, "no-pdftotext", false, "Do not fall back to pdftotext for PDFs")

	return cmd
}
