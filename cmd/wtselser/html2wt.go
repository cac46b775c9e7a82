package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/wtselser/internal/normalize"
	"github.com/dgallion1/wtselser/internal/parsoid"
	"github.com/dgallion1/wtselser/internal/pipeline"
)

func html2wtCmd(g *globalFlags) *cobra.Command {
	var (
		htmlPath     string
		origHTMLPath string
		origWTPath   string
		parsoidURL   string
		scrub        bool
		inTemplate   bool
	)

	cmd := &cobra.Command{
		Use:   "html2wt",
		Short: "Serialize an HTML file to wikitext",
		Long: `Serialize edited HTML to wikitext.

With --orig-wt the edit is applied selectively: unchanged content keeps
its original source. The original HTML is read from --orig-html or, when
that is missing, fetched by parsing the original wikitext with Parsoid.

Examples:
  wtselser html2wt --html page.html
  wtselser html2wt --html edited.html --orig-html orig.html --orig-wt orig.wiki
  wtselser html2wt --html edited.html --orig-wt orig.wiki --parsoid-url https://en.wikipedia.org/api/rest_v1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if origHTMLPath != "" && origWTPath == "" {
				return errors.New("--orig-html requires --orig-wt")
			}
			log := g.logger(cmd.ErrOrStderr())

			edited, err := os.ReadFile(htmlPath)
			if err != nil {
				return fmt.Errorf("read html: %w", err)
			}
			req := pipeline.Request{HTML: string(edited), ScrubWikitext: scrub, InTemplate: inTemplate}
			if origWTPath != "" {
				wt, err := os.ReadFile(origWTPath)
				if err != nil {
					return fmt.Errorf("read original wikitext: %w", err)
				}
				req.Original = &pipeline.Original{Wikitext: string(wt)}
				if origHTMLPath != "" {
					oh, err := os.ReadFile(origHTMLPath)
					if err != nil {
						return fmt.Errorf("read original html: %w", err)
					}
					req.Original.HTML = string(oh)
				}
			}

			tpl, err := g.provider(log)
			if err != nil {
				return err
			}
			var parser normalize.Parser
			if parsoidURL != "" {
				ps := parsoid.NewClient(parsoidURL, "", 30*time.Second, log)
				defer ps.Close()
				parser = ps
			}

			conv := pipeline.NewConverter(pipeline.ConverterConfig{RTTestMode: g.rtTestMode}, tpl, parser, nil, nil, log)
			out, err := conv.Convert(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, f := range out.Faults {
				log.Warn("serializer fault", "kind", f.Kind, "tag", f.Tag, "detail", f.Error())
			}
			fmt.Fprint(cmd.OutOrStdout(), out.Wikitext)
			return nil
		},
	}

	cmd.Flags().StringVar(&htmlPath, "html", "", "Edited HTML file")
	cmd.Flags().StringVar(&origHTMLPath, "orig-html", "", "HTML of the original revision")
	cmd.Flags().StringVar(&origWTPath, "orig-wt", "", "Wikitext of the original revision")
	cmd.Flags().StringVar(&parsoidURL, "parsoid-url", "", "Parsoid REST base URL used to parse --orig-wt")
	cmd.Flags().BoolVar(&scrub, "scrub", false, "Normalize the edited DOM before serializing")
	cmd.Flags().BoolVar(&inTemplate, "in-template", false, "Serialize as template content")
	_ = cmd.MarkFlagRequired("html")

	return cmd
}
