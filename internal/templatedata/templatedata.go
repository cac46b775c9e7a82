// Package templatedata looks up the formatting and parameter metadata
// wikis publish for their templates.
package templatedata

import (
	"context"
	"sync"
)

// Param describes one declared template parameter.
type Param struct {
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// TemplateData is the subset of a template's metadata that affects how a
// transclusion is written: the preferred layout and the canonical
// parameter order.
type TemplateData struct {
	Title          string           `json:"title,omitempty" yaml:"-"`
	Format         string           `json:"format,omitempty" yaml:"format,omitempty"`
	ParamOrder     []string         `json:"paramOrder,omitempty" yaml:"paramOrder,omitempty"`
	Params         map[string]Param `json:"params,omitempty" yaml:"params,omitempty"`
	Missing        bool             `json:"missing,omitempty" yaml:"missing,omitempty"`
	NoTemplateData bool             `json:"notemplatedata,omitempty" yaml:"notemplatedata,omitempty"`
}

// Usable reports whether td carries information. A missing template or
// one without documentation is treated like no answer at all.
func (td *TemplateData) Usable() bool {
	return td != nil && !td.Missing && !td.NoTemplateData
}

// Aliases returns the aliases declared for name.
func (td *TemplateData) Aliases(name string) []string {
	if td == nil {
		return nil
	}
	return td.Params[name].Aliases
}

// Provider fetches templatedata by page title, e.g. "Template:Infobox".
// A nil result with a nil error means the wiki has nothing for the title.
type Provider interface {
	Fetch(ctx context.Context, title string) (*TemplateData, error)
}

// Cache memoizes a Provider for the lifetime of one page conversion.
// Failed lookups are not remembered.
type Cache struct {
	p Provider

	mu      sync.Mutex
	entries map[string]*TemplateData
}

// NewCache wraps p. A nil p yields a cache that never has answers.
func NewCache(p Provider) *Cache {
	return &Cache{p: p, entries: make(map[string]*TemplateData)}
}

// Fetch returns the cached answer for title, asking the provider once.
func (c *Cache) Fetch(ctx context.Context, title string) (*TemplateData, error) {
	if c == nil || c.p == nil {
		return nil, nil
	}
	c.mu.Lock()
	td, ok := c.entries[title]
	c.mu.Unlock()
	if ok {
		return td, nil
	}

	td, err := c.p.Fetch(ctx, title)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[title] = td
	c.mu.Unlock()
	return td, nil
}

// Len is the number of remembered titles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Chain asks each provider in turn and returns the first usable answer.
// Errors are remembered and returned only when no provider answers.
type Chain []Provider

func (c Chain) Fetch(ctx context.Context, title string) (*TemplateData, error) {
	var firstErr error
	var last *TemplateData
	for _, p := range c {
		if p == nil {
			continue
		}
		td, err := p.Fetch(ctx, title)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if td.Usable() {
			return td, nil
		}
		if td != nil {
			last = td
		}
	}
	if last == nil && firstErr != nil {
		return nil, firstErr
	}
	return last, nil
}
