package templatedata

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Static serves templatedata from a fixed table keyed by title.
type Static map[string]*TemplateData

// Fetch implements Provider. Unknown titles yield nil.
func (s Static) Fetch(_ context.Context, title string) (*TemplateData, error) {
	return s[canonicalTitle(title)], nil
}

// canonicalTitle spells a title with spaces, the way links resolve it.
func canonicalTitle(title string) string {
	return strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
}

// LoadFile reads a YAML document mapping titles to templatedata:
//
//	Template:Infobox:
//	  format: block
//	  paramOrder: [name, image]
func LoadFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templatedata file: %w", err)
	}
	return Parse(data)
}

// Parse decodes the YAML form accepted by LoadFile.
func Parse(data []byte) (Static, error) {
	var raw map[string]*TemplateData
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse templatedata: %w", err)
	}
	s := make(Static, len(raw))
	for title, td := range raw {
		title = canonicalTitle(title)
		if _, dup := s[title]; dup {
			return nil, fmt.Errorf("parse templatedata: %q listed twice", title)
		}
		if td == nil {
			td = &TemplateData{NoTemplateData: true}
		}
		td.Title = title
		s[title] = td
	}
	return s, nil
}
