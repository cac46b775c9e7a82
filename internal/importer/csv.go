package importer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// CSVImporter handles CSV files. The first record becomes the header row
// of a wikitable.
type CSVImporter struct{}

func (p *CSVImporter) Import(r io.Reader, filename string) (*Imported, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	b := newBuilder()
	if len(records) == 0 {
		return &Imported{Title: baseTitle(filename), Doc: b.doc}, nil
	}

	table := dom.NewElement("table", html.Attribute{Key: "class", Val: "wikitable"})
	tbody := dom.NewElement("tbody")
	dom.Append(table, tbody)
	for i, rec := range records {
		cell := "td"
		if i == 0 {
			cell = "th"
		}
		tr := dom.NewElement("tr")
		for _, v := range rec {
			c := dom.NewElement(cell)
			dom.Append(c, dom.NewText(v))
			dom.Append(tr, c)
		}
		dom.Append(tbody, tr)
	}
	b.append(table)

	return &Imported{Title: baseTitle(filename), Doc: b.doc}, nil
}
