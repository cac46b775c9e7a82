package wts

import "testing"

func TestCombineNl(t *testing.T) {
	tests := []struct {
		name string
		a, b nlConstraint
		want sepConstraints
	}{
		{"no constraints", nlConstraint{}, nlConstraint{}, sepConstraints{min: 0, max: 2}},
		{"b tightens", nl(0, 0), nl(1, 2), sepConstraints{min: 1, max: 1}},
		{"b wins conflict", nl(2, 2), nl(0, 1), sepConstraints{min: 1, max: 1}},
		{"overlap", nl(1, 2), nl(0, 2), sepConstraints{min: 1, max: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := combineNl(tt.a, tt.b)
			if got.min != tt.want.min || got.max != tt.want.max {
				t.Errorf("expected [%d,%d], got [%d,%d]", tt.want.min, tt.want.max, got.min, got.max)
			}
		})
	}
}

func TestSepNewlines_IgnoresCommentLines(t *testing.T) {
	if got := sepNewlines("\n<!-- c -->\n"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := sepNewlines("\n\n"); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := sepNewlines("<!--\n\n-->"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestStripNewlines_KeepsComments(t *testing.T) {
	got := stripNewlines("\n<!--x-->\n\n", 2)
	if got != "\n<!--x-->" {
		t.Errorf("expected %q, got %q", "\n<!--x-->", got)
	}
}
