package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/wtselser/internal/templatedata"
)

// Version information set at build time.
var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose         bool
	templateData    string
	templateDataAPI string
	rtTestMode      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "wtselser",
		Short: "Convert HTML back to wikitext",
		Long: `wtselser turns edited Parsoid HTML back into wikitext.

Given the original revision, only the edited parts of the page are
regenerated and everything else is copied from the original source.
Without it the whole page is serialized from scratch.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log serializer diagnostics to stderr")
	pf.StringVar(&g.templateData, "templatedata", "", "YAML file with templatedata for templates")
	pf.StringVar(&g.templateDataAPI, "templatedata-api", "", "MediaWiki api.php URL to fetch templatedata from")
	pf.BoolVar(&g.rtTestMode, "rt-test-mode", false, "Keep output byte-identical for round-trip testing")

	rootCmd.AddCommand(
		html2wtCmd(g),
		importCmd(g),
	)
	return rootCmd
}

func (g *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// provider assembles the templatedata sources named on the command line.
// The YAML file is consulted before the API.
func (g *globalFlags) provider(log *slog.Logger) (templatedata.Provider, error) {
	var chain templatedata.Chain
	if g.templateData != "" {
		static, err := templatedata.LoadFile(g.templateData)
		if err != nil {
			return nil, err
		}
		chain = append(chain, static)
	}
	if g.templateDataAPI != "" {
		chain = append(chain, templatedata.NewAPIClient(g.templateDataAPI, 5, 10*time.Second, log))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}
