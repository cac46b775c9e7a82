package wts

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/dgallion1/wtselser/internal/templatedata"
)

// tplSpan builds a transclusion wrapper. dp may be empty for content
// that never went through the parser.
func tplSpan(about, dp, mw, text string) string {
	s := `<span about="` + about + `" typeof="mw:Transclusion"`
	if dp != "" {
		s += ` data-parsoid='` + dp + `'`
	}
	return s + ` data-mw='` + mw + `'>` + text + `</span>`
}

func tplMW(target, params string, i int) string {
	return `{"parts":[` + tplPart(target, params, i) + `]}`
}

func tplPart(target, params string, i int) string {
	name := strings.TrimSpace(target)
	return `{"template":{"target":{"wt":"` + strings.ReplaceAll(target, "\n", `\n`) + `","href":"./Template:` + name + `"},` +
		`"params":` + params + `,"i":` + string(rune('0'+i)) + `}}`
}

const (
	twoFoo = `{"f1":{"wt":"foo"},"f2":{"wt":"foo"}}`
	blank  = `{"f1":{"wt":""},"f2":{"wt":"foo"}}`
)

var dataParsoidRe = regexp.MustCompile(`data-parsoid.*? data-mw`)

type formatCase struct {
	name string
	html string
	// noSelser is empty when the case has no parser output to start from.
	noSelser, newContent, edited string
}

var formatCases = []formatCase{
	{
		name:       "no templatedata",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f2","spc":[""," "," ","\n"]},{"k":"f1","spc":[""," "," ","\n"]}]]}`, tplMW("TplWithoutTemplateData\n", twoFoo, 0), "foo"),
		noSelser:   "{{TplWithoutTemplateData\n|f2 = foo\n|f1 = foo\n}}",
		newContent: "{{TplWithoutTemplateData|f1=foo|f2=foo}}",
		edited:     "{{TplWithoutTemplateData\n|f2 = foo\n|f1 = BAR\n}}",
	},
	{
		name:       "plain",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"f2"}]]}`, tplMW("NoFormatWithParamOrder", twoFoo, 0), "foo"),
		noSelser:   "{{NoFormatWithParamOrder|f1=foo|f2=foo}}",
		newContent: "{{NoFormatWithParamOrder|f1=foo|f2=foo}}",
		edited:     "{{NoFormatWithParamOrder|f1=BAR|f2=foo}}",
	},
	{
		name:       "source order kept and new param placed",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f2"},{"k":"f1"}]]}`, tplMW("NoFormatWithParamOrder", `{"f1":{"wt":"foo"},"f2":{"wt":"foo"},"f0":{"wt":"BOO"}}`, 0), "foo"),
		noSelser:   "{{NoFormatWithParamOrder|f2=foo|f1=foo|f0=BOO}}",
		newContent: "{{NoFormatWithParamOrder|f0=BOO|f1=foo|f2=foo}}",
		edited:     "{{NoFormatWithParamOrder|f2=foo|f0=BOO|f1=BAR}}",
	},
	{
		name:       "inline",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f1","spc":[""," "," ","\n"]},{"k":"f2","spc":[""," "," ","\n"]}]]}`, tplMW("InlineTplNoParamOrder\n", twoFoo, 0), "foo"),
		noSelser:   "{{InlineTplNoParamOrder\n|f1 = foo\n|f2 = foo\n}}",
		newContent: "{{InlineTplNoParamOrder|f1=foo|f2=foo}}",
		edited:     "{{InlineTplNoParamOrder|f1=BAR|f2=foo}}",
	},
	{
		name:       "block",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"f2"}]]}`, tplMW("BlockTplNoParamOrder", twoFoo, 0), "foo"),
		noSelser:   "{{BlockTplNoParamOrder|f1=foo|f2=foo}}",
		newContent: "{{BlockTplNoParamOrder\n| f1 = foo\n| f2 = foo\n}}",
		edited:     "{{BlockTplNoParamOrder\n| f1 = BAR\n| f2 = foo\n}}",
	},
	{
		name:       "block keeps commented spacing",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f1","spc":[" ", " ", " ", "\n <!--ha--> "]},{"k":"f2","spc":[" ", " ", " ", ""]}]]}`, tplMW("BlockTplNoParamOrder\n ", twoFoo, 0), "foo"),
		noSelser:   "{{BlockTplNoParamOrder\n | f1 = foo\n <!--ha--> | f2 = foo}}",
		newContent: "{{BlockTplNoParamOrder\n| f1 = foo\n| f2 = foo\n}}",
		edited:     "{{BlockTplNoParamOrder\n| f1 = BAR\n <!--ha--> | f2 = foo\n}}",
	},
	{
		name:       "inline with param order",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f2","spc":[""," "," ","\n"]},{"k":"f1","spc":[""," "," ","\n"]}]]}`, tplMW("InlineTplWithParamOrder\n", twoFoo, 0), "foo"),
		noSelser:   "{{InlineTplWithParamOrder\n|f2 = foo\n|f1 = foo\n}}",
		newContent: "{{InlineTplWithParamOrder|f1=foo|f2=foo}}",
		edited:     "{{InlineTplWithParamOrder|f2=foo|f1=BAR}}",
	},
	{
		name:       "block with param order",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f2"},{"k":"f1"}]]}`, tplMW("BlockTplWithParamOrder", twoFoo, 0), "foo"),
		noSelser:   "{{BlockTplWithParamOrder|f2=foo|f1=foo}}",
		newContent: "{{BlockTplWithParamOrder\n| f1 = foo\n| f2 = foo\n}}",
		edited:     "{{BlockTplWithParamOrder\n| f2 = foo\n| f1 = BAR\n}}",
	},
	{
		name: "parts of one wrapper",
		html: tplSpan("#mwt1", `{"pi":[[{"k":"f2"},{"k":"f1"}],[{"k":"f2","spc":[""," "," ","\n"]},{"k":"f1","spc":[""," "," ","\n"]}]]}`,
			`{"parts":[`+tplPart("BlockTplWithParamOrder", twoFoo, 0)+`,"SOME TEXT",`+tplPart("InlineTplNoParamOrder\n", twoFoo, 1)+`]}`, "foo"),
		noSelser:   "{{BlockTplWithParamOrder|f2=foo|f1=foo}}SOME TEXT{{InlineTplNoParamOrder\n|f2 = foo\n|f1 = foo\n}}",
		newContent: "{{BlockTplWithParamOrder\n| f1 = foo\n| f2 = foo\n}}SOME TEXT{{InlineTplNoParamOrder|f1=foo|f2=foo}}",
		edited:     "{{BlockTplWithParamOrder\n| f2 = foo\n| f1 = BAR\n}}SOME TEXT{{InlineTplNoParamOrder|f2=foo|f1=foo}}",
	},
	{
		name:       "aliased",
		html:       tplSpan("#mwt1", "", tplMW("WithParamOrderAndAliases\n", `{"f2":{"wt":"foo"},"f3":{"wt":"foo"}}`, 1), "foo"),
		noSelser:   "{{WithParamOrderAndAliases|f3=foo|f2=foo}}",
		newContent: "{{WithParamOrderAndAliases|f3=foo|f2=foo}}",
		edited:     "{{WithParamOrderAndAliases|f3=foo|f2=BAR}}",
	},
	{
		name:       "aliased in source order",
		html:       tplSpan("#mwt1", `{"pi":[[{"k":"f4"},{"k":"f3"},{"k":"f1"}]]}`, tplMW("WithParamOrderAndAliases", `{"f4":{"wt":"foo"},"f3":{"wt":"foo"},"f1":{"wt":"foo"}}`, 0), "foo"),
		noSelser:   "{{WithParamOrderAndAliases|f4=foo|f3=foo|f1=foo}}",
		newContent: "{{WithParamOrderAndAliases|f1=foo|f4=foo|f3=foo}}",
		edited:     "{{WithParamOrderAndAliases|f4=BAR|f3=foo|f1=foo}}",
	},
	{
		name:       "custom inline",
		html:       "x " + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"x"}]]}`, tplMW("InlineFormattedTpl_1", `{"f1":{"wt":""},"x":{"wt":"foo"}}`, 0), "something") + " y",
		noSelser:   "x {{InlineFormattedTpl_1|f1=|x=foo}} y",
		newContent: "x {{InlineFormattedTpl_1|f1=|x=foo}} y",
		edited:     "x {{InlineFormattedTpl_1|f1=|x=BAR}} y",
	},
	{
		name:       "custom inline at line start",
		html:       "x " + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"x"}]]}`, tplMW("InlineFormattedTpl_2", `{"f1":{"wt":""},"x":{"wt":"foo"}}`, 0), "something") + " y",
		noSelser:   "x {{InlineFormattedTpl_2|f1=|x=foo}} y",
		newContent: "x \n{{InlineFormattedTpl_2 | f1 =  | x = foo}} y",
		edited:     "x \n{{InlineFormattedTpl_2 | f1 =  | x = BAR}} y",
	},
	{
		name:       "custom inline padded names",
		html:       "x " + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"x"}]]}`, tplMW("InlineFormattedTpl_3", `{"f1":{"wt":""},"x":{"wt":"foo"}}`, 0), "something") + " y",
		noSelser:   "x {{InlineFormattedTpl_3|f1=|x=foo}} y",
		newContent: "x {{InlineFormattedTpl_3| f1    = | x     = foo}} y",
		edited:     "x {{InlineFormattedTpl_3| f1    = | x     = BAR}} y",
	},
	{
		name:       "multibyte",
		html:       "x " + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"é"}]]}`, tplMW("InlineFormattedTpl_3", `{"f1":{"wt":""},"é":{"wt":"foo"}}`, 0), "something") + " y",
		noSelser:   "x {{InlineFormattedTpl_3|f1=|é=foo}} y",
		newContent: "x {{InlineFormattedTpl_3| f1    = | é     = foo}} y",
		edited:     "x {{InlineFormattedTpl_3| f1    = | é     = BAR}} y",
	},
	{
		name:       "custom block",
		html:       "x" + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"f2"}]]}`, tplMW("BlockFormattedTpl_1", blank, 0), "something") + "y",
		noSelser:   "x{{BlockFormattedTpl_1|f1=|f2=foo}}y",
		newContent: "x{{BlockFormattedTpl_1\n| f1 = \n| f2 = foo\n}}y",
		edited:     "x{{BlockFormattedTpl_1\n| f1 = \n| f2 = BAR\n}}y",
	},
	{
		name:       "custom block on own lines",
		html:       "x" + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"f2"}]]}`, tplMW("BlockFormattedTpl_2", blank, 0), "something") + "y",
		noSelser:   "x{{BlockFormattedTpl_2|f1=|f2=foo}}y",
		newContent: "x\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = foo\n}}\ny",
		edited:     "x\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = BAR\n}}\ny",
	},
	{
		name:       "T199849 newlines already present",
		html:       "x\n" + tplSpan("#mwt1", "", tplMW("BlockFormattedTpl_2", blank, 0), "something") + "\ny",
		newContent: "x\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = foo\n}}\ny",
		edited:     "x\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = BAR\n}}\ny",
	},
	{
		name:       "T199849 text parts",
		html:       "x\n" + tplSpan("#mwt1", "", `{"parts":["X",`+tplPart("BlockFormattedTpl_2", blank, 0)+`,"Y"]}`, "something") + "\ny",
		newContent: "x\nX\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = foo\n}}\nY\ny",
		edited:     "x\nX\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = BAR\n}}\nY\ny",
	},
	{
		name: "T199849 consecutive parts before comment",
		html: "x\n" + tplSpan("#mwt1", "", `{"parts":[`+tplPart("BlockFormattedTpl_2", `{"g1":{"wt":""},"g2":{"wt":""}}`, 0)+`,`+
			tplPart("BlockFormattedTpl_2", blank, 1)+`]}`, "something") + "<!--cmt-->\ny",
		newContent: "x\n{{BlockFormattedTpl_2\n| g1 = \n| g2 = \n}}\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = foo\n}}<!--cmt-->\ny",
		edited:     "x\n{{BlockFormattedTpl_2\n| g1 = \n| g2 = \n}}\n{{BlockFormattedTpl_2\n| f1 = \n| f2 = BAR\n}}<!--cmt-->\ny",
	},
	{
		name:       "custom block with padded names",
		html:       "x" + tplSpan("#mwt1", `{"pi":[[{"k":"f1"},{"k":"f2"}]]}`, tplMW("BlockFormattedTpl_3", blank, 0), "something") + "y",
		noSelser:   "x{{BlockFormattedTpl_3|f1=|f2=foo}}y",
		newContent: "x{{BlockFormattedTpl_3|\n f1    = |\n f2    = foo}}y",
		edited:     "x{{BlockFormattedTpl_3|\n f1    = |\n f2    = BAR}}y",
	},
}

func TestSerialize_TemplateDataFormats(t *testing.T) {
	td, err := templatedata.LoadFile("testdata/formats.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := New(Options{}, td, nil)
	ctx := context.Background()

	for _, tt := range formatCases {
		t.Run(tt.name, func(t *testing.T) {
			if tt.noSelser != "" {
				t.Run("no_selser", func(t *testing.T) {
					res, err := s.Serialize(ctx, dom.MustParse(tt.html), nil, nil)
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					if res.Wikitext != tt.noSelser {
						t.Errorf("expected %q, got %q", tt.noSelser, res.Wikitext)
					}
				})
			}

			t.Run("new_content", func(t *testing.T) {
				fresh := dataParsoidRe.ReplaceAllString(tt.html, " data-mw")
				res, err := s.Serialize(ctx, dom.MustParse(fresh), nil, nil)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Wikitext != tt.newContent {
					t.Errorf("expected %q, got %q", tt.newContent, res.Wikitext)
				}
			})

			t.Run("edited", func(t *testing.T) {
				oldDoc := dom.MustParse(tt.html)
				newDoc := dom.MustParse(strings.Replace(tt.html, "foo", "BAR", 1))
				marks := diff.Diff(oldDoc, newDoc)
				res, err := s.Serialize(ctx, newDoc, marks, &SelserData{Wikitext: tt.noSelser})
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Wikitext != tt.edited {
					t.Errorf("expected %q, got %q", tt.edited, res.Wikitext)
				}
			})
		})
	}
}
