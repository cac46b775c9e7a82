package wts

import "testing"

func TestNormalizeTitle(t *testing.T) {
	tests := map[string]string{
		"foo_bar":    "Foo bar",
		"  a   b  ":  "A b",
		"Éclair":     "Éclair",
		"éclair":     "Éclair",
		"":           "",
	}
	for in, want := range tests {
		if got := normalizeTitle(in); got != want {
			t.Errorf("normalizeTitle(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestHrefToTitle(t *testing.T) {
	if got := hrefToTitle("./Main_Page"); got != "Main Page" {
		t.Errorf("expected %q, got %q", "Main Page", got)
	}
	if got := hrefToTitle("./Caf%C3%A9"); got != "Café" {
		t.Errorf("expected %q, got %q", "Café", got)
	}
}

func TestEscapeLinkTarget_PrefixesNamespaces(t *testing.T) {
	if got := escapeLinkTarget("Category:Foo"); got != ":Category:Foo" {
		t.Errorf("expected %q, got %q", ":Category:Foo", got)
	}
	if got := escapeLinkTarget("Foo"); got != "Foo" {
		t.Errorf("expected %q, got %q", "Foo", got)
	}
}

func TestEscapeExtLinkURL(t *testing.T) {
	if got := escapeExtLinkURL("http://a b"); got != "http://a&#x20;b" {
		t.Errorf("expected %q, got %q", "http://a&#x20;b", got)
	}
	if got := escapeExtLinkURL("http://x/-{y}-"); got != "http://x/&#x2D;{y}-" {
		t.Errorf("expected %q, got %q", "http://x/&#x2D;{y}-", got)
	}
}

func TestMagicLinkSrc(t *testing.T) {
	src, ok := magicLinkSrc("./Special:BookSources/0123456789", "ISBN 0-12-345678-9")
	if !ok || src != "ISBN 0-12-345678-9" {
		t.Errorf("expected the ISBN text back, got %q (%v)", src, ok)
	}
	if _, ok := magicLinkSrc("https://example.org", "RFC 1234"); ok {
		t.Error("expected a mismatched href to be rejected")
	}
}

func TestSerialize_BareURL(t *testing.T) {
	res := serializeHTML(t, `<p><a rel="mw:ExtLink" href="https://example.org">https://example.org</a></p>`)
	if res.Wikitext != "https://example.org" {
		t.Errorf("expected %q, got %q", "https://example.org", res.Wikitext)
	}
}
