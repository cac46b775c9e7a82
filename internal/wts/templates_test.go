package wts

import (
	"slices"
	"testing"

	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/dgallion1/wtselser/internal/templatedata"
	"github.com/google/go-cmp/cmp"
)

func TestEscapeTplArg(t *testing.T) {
	tests := []struct {
		name      string
		arg       string
		opts      tplArgOpts
		want      string
		wantNamed bool
	}{
		{
			name:      "pipe",
			arg:       "a|b",
			opts:      tplArgOpts{serializeAsNamed: true, argIndex: 1, numArgs: 1},
			want:      "a{{!}}b",
			wantNamed: true,
		},
		{
			name:      "equals forces named",
			arg:       "x=y",
			opts:      tplArgOpts{argIndex: 1, numArgs: 2},
			want:      "x=y",
			wantNamed: true,
		},
		{
			name: "trailing brace on last arg",
			arg:  "a}",
			opts: tplArgOpts{serializeAsNamed: true, argIndex: 1, numArgs: 1},
			want: "a<nowiki>}</nowiki>",
			// serializeAsNamed is passed through.
			wantNamed: true,
		},
		{
			name: "plain",
			arg:  "hello",
			opts: tplArgOpts{argPositionalIndex: 1, numPositionalArgs: 1, argIndex: 1, numArgs: 1},
			want: "hello",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, named := escapeTplArg(tt.arg, tt.opts)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if named != tt.wantNamed {
				t.Errorf("expected named=%v, got %v", tt.wantNamed, named)
			}
		})
	}
}

func TestFormatStringSubst(t *testing.T) {
	if got := formatStringSubst("|_____=", "ab", true); got != "|ab   =" {
		t.Errorf("expected %q, got %q", "|ab   =", got)
	}
	if got := formatStringSubst("|_=", "  long  ", true); got != "|long=" {
		t.Errorf("expected %q, got %q", "|long=", got)
	}
	if got := formatStringSubst("}}", "x", false); got != "}}" {
		t.Errorf("expected %q, got %q", "}}", got)
	}
}

func TestParseFormat(t *testing.T) {
	block := parseFormat("block")
	if !block.custom {
		t.Error("expected block to be a recognised format")
	}
	if block.start != "{{_" || block.end != "\n}}" {
		t.Errorf("unexpected block parts: %q %q", block.start, block.end)
	}

	bad := parseFormat("{{not a format")
	if bad.custom {
		t.Error("expected a malformed format to be rejected")
	}
	inline := parseFormat("inline")
	if bad.start != inline.start || bad.paramName != inline.paramName || bad.end != inline.end {
		t.Errorf("expected the inline fallback, got %+v", bad)
	}

	sol := parseFormat("\n{{_\n|_=_}}\n")
	if !sol.sol || !sol.eol || !sol.custom {
		t.Errorf("expected sol and eol to be recorded, got %+v", sol)
	}
}

func sortParams(argInfo []dom.ParamInfo, td *templatedata.TemplateData, keys []string) []string {
	out := slices.Clone(keys)
	slices.SortStableFunc(out, paramComparator(argInfo, td, keys))
	return out
}

func TestParamComparator_NewParamFollowsTemplateData(t *testing.T) {
	td := &templatedata.TemplateData{
		ParamOrder: []string{"name", "image", "caption"},
		Params: map[string]templatedata.Param{
			"name": {Aliases: []string{"title"}},
		},
	}
	argInfo := []dom.ParamInfo{{K: "title", Named: true}, {K: "caption", Named: true}}

	got := sortParams(argInfo, td, []string{"title", "caption", "image"})
	want := []string{"title", "image", "caption"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParamComparator_KeepsSourceOrder(t *testing.T) {
	argInfo := []dom.ParamInfo{{K: "b", Named: true}, {K: "a", Named: true}}

	got := sortParams(argInfo, nil, []string{"a", "b", "c"})
	want := []string{"b", "a", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
