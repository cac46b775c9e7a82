package redlinks

import (
	"testing"

	"github.com/dgallion1/wtselser/internal/dom"
)

func TestCleanHref(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"./Hello?action=edit&redlink=1", "./Hello", true},
		{"./Hello?redlink=1&action=edit", "./Hello", true},
		{"/w/index.php?action=edit&redlink=1&title=Hello", "/w/index.php?title=Hello", true},
		{"/w/index.php?title=Hello&redlink=1&action=edit", "/w/index.php?title=Hello", true},
		{"./Hello?action=edit&foo=bar&redlink=1#Section", "./Hello?foo=bar#Section", true},
		{"./Hello?action=edit&redlink=1#", "./Hello#", true},
		{"./Hello?action=edit", "./Hello?action=edit", false},
		{"./Hello?redlink=1", "./Hello?redlink=1", false},
		{"./Hello#a?action=edit&redlink=1", "./Hello#a?action=edit&redlink=1", false},
		{"./Hello", "./Hello", false},
	}
	for _, tt := range tests {
		got, changed := CleanHref(tt.in)
		if got != tt.want || changed != tt.changed {
			t.Errorf("CleanHref(%q): expected (%q, %v), got (%q, %v)", tt.in, tt.want, tt.changed, got, changed)
		}
	}
}

func TestRun_OnlyWikiLinks(t *testing.T) {
	d := dom.MustParse(`<p>` +
		`<a rel="mw:WikiLink" href="./Hello?action=edit&amp;redlink=1" class="new">Hello</a>` +
		`<a rel="mw:ExtLink" href="http://example.org/x?action=edit&amp;redlink=1">ext</a>` +
		`<a rel="mw:WikiLink" href="./Bye">Bye</a>` +
		`</p>`)

	if n := Run(d.Body); n != 1 {
		t.Fatalf("expected 1 rewritten link, got %d", n)
	}
	links := dom.Children(d.Body.FirstChild)
	if got := dom.Attr(links[0], "href"); got != "./Hello" {
		t.Errorf("expected ./Hello, got %q", got)
	}
	if got := dom.Attr(links[1], "href"); got != "http://example.org/x?action=edit&redlink=1" {
		t.Errorf("external link should be untouched, got %q", got)
	}
	if got := dom.Attr(links[2], "href"); got != "./Bye" {
		t.Errorf("expected ./Bye, got %q", got)
	}
}

func TestRun_NilRootPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil root")
		}
	}()
	Run(nil)
}
