package dom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// DSR is a document source range: byte offsets into the original wikitext
// plus the widths of the opening and closing tag text. Unknown values are -1.
type DSR struct {
	Start      int
	End        int
	OpenWidth  int
	CloseWidth int
}

// NewDSR builds a fully specified range.
func NewDSR(start, end, open, closeW int) *DSR {
	return &DSR{Start: start, End: end, OpenWidth: open, CloseWidth: closeW}
}

// Valid reports whether the range can be used to slice source text.
func (d *DSR) Valid() bool {
	return d != nil && d.Start >= 0 && d.End >= d.Start
}

// ValidTagWidths reports whether the open/close tag widths are known and
// fit inside the range.
func (d *DSR) ValidTagWidths() bool {
	return d.Valid() && d.OpenWidth >= 0 && d.CloseWidth >= 0 &&
		d.Start+d.OpenWidth <= d.End-d.CloseWidth
}

// InnerStart is the offset just past the opening tag.
func (d *DSR) InnerStart() int { return d.Start + d.OpenWidth }

// InnerEnd is the offset of the closing tag.
func (d *DSR) InnerEnd() int { return d.End - d.CloseWidth }

func (d DSR) MarshalJSON() ([]byte, error) {
	vals := []int{d.Start, d.End, d.OpenWidth, d.CloseWidth}
	out := make([]any, len(vals))
	for i, v := range vals {
		if v < 0 {
			out[i] = nil
		} else {
			out[i] = v
		}
	}
	return json.Marshal(out)
}

func (d *DSR) UnmarshalJSON(b []byte) error {
	var raw []*int
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode dsr: %w", err)
	}
	dst := []*int{&d.Start, &d.End, &d.OpenWidth, &d.CloseWidth}
	for i, p := range dst {
		*p = -1
		if i < len(raw) && raw[i] != nil {
			*p = *raw[i]
		}
	}
	return nil
}

// ParamInfo records how one template parameter was written in the source.
// Spc holds the whitespace around the name and value:
// before name, after name, before value, after value.
type ParamInfo struct {
	K     string   `json:"k"`
	Named bool     `json:"named,omitempty"`
	Spc   []string `json:"spc,omitempty"`
}

// DataParsoid is the parser bookkeeping attached to a node.
type DataParsoid struct {
	DSR               *DSR              `json:"dsr,omitempty"`
	Stx               string            `json:"stx,omitempty"`
	Src               string            `json:"src,omitempty"`
	SA                map[string]string `json:"sa,omitempty"`
	PI                [][]ParamInfo     `json:"pi,omitempty"`
	AutoInsertedStart bool              `json:"autoInsertedStart,omitempty"`
	AutoInsertedEnd   bool              `json:"autoInsertedEnd,omitempty"`
	Fostered          bool              `json:"fostered,omitempty"`
	Misnested         bool              `json:"misnested,omitempty"`
}

// Clone returns a deep copy.
func (dp *DataParsoid) Clone() *DataParsoid {
	if dp == nil {
		return nil
	}
	c := *dp
	if dp.DSR != nil {
		r := *dp.DSR
		c.DSR = &r
	}
	if dp.SA != nil {
		c.SA = make(map[string]string, len(dp.SA))
		for k, v := range dp.SA {
			c.SA[k] = v
		}
	}
	if dp.PI != nil {
		c.PI = make([][]ParamInfo, len(dp.PI))
		for i, part := range dp.PI {
			c.PI[i] = append([]ParamInfo(nil), part...)
		}
	}
	return &c
}

// Target names the invoked template, parser function or argument.
type Target struct {
	WT       string `json:"wt"`
	Href     string `json:"href,omitempty"`
	Function string `json:"function,omitempty"`
}

// ParamKey is the source spelling of a parameter name.
type ParamKey struct {
	WT string `json:"wt"`
}

// Param is a single template parameter. Exactly one of WT and HTML is
// normally set.
type Param struct {
	Name string    `json:"-"`
	WT   *string   `json:"wt,omitempty"`
	HTML *string   `json:"html,omitempty"`
	Key  *ParamKey `json:"key,omitempty"`
}

// Params keeps template parameters in the order they were given.
type Params []Param

// Get returns the parameter called name.
func (ps Params) Get(name string) (Param, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Set replaces the wikitext value of name, appending it when absent.
func (ps *Params) Set(name, wt string) {
	for i := range *ps {
		if (*ps)[i].Name == name {
			(*ps)[i].WT = &wt
			(*ps)[i].HTML = nil
			return
		}
	}
	*ps = append(*ps, Param{Name: name, WT: &wt})
}

func (ps Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (ps *Params) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode params: expected object")
	}
	var out Params
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode params: expected key, got %v", tok)
		}
		var p Param
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode param %q: %w", name, err)
		}
		p.Name = name
		out = append(out, p)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	*ps = out
	return nil
}

// Transclusion is a template call or a template argument reference.
type Transclusion struct {
	Target Target `json:"target"`
	Params Params `json:"params"`
	I      int    `json:"i"`
}

// Part is one element of a data-mw parts list: literal wikitext, a template
// call, or a template argument.
type Part struct {
	Text        string
	Template    *Transclusion
	TemplateArg *Transclusion
}

// Transclusion returns whichever call the part holds, or nil for text.
func (p Part) Transclusion() *Transclusion {
	if p.Template != nil {
		return p.Template
	}
	return p.TemplateArg
}

func (p Part) MarshalJSON() ([]byte, error) {
	switch {
	case p.Template != nil:
		return json.Marshal(map[string]*Transclusion{"template": p.Template})
	case p.TemplateArg != nil:
		return json.Marshal(map[string]*Transclusion{"templatearg": p.TemplateArg})
	default:
		return json.Marshal(p.Text)
	}
}

func (p *Part) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.Text)
	}
	var obj struct {
		Template    *Transclusion `json:"template"`
		TemplateArg *Transclusion `json:"templatearg"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode part: %w", err)
	}
	if obj.Template == nil && obj.TemplateArg == nil {
		return fmt.Errorf("decode part: neither template nor templatearg")
	}
	p.Template = obj.Template
	p.TemplateArg = obj.TemplateArg
	return nil
}

// ExtBody is the body of an extension tag.
type ExtBody struct {
	ExtSrc string `json:"extsrc,omitempty"`
	HTML   string `json:"html,omitempty"`
}

// DataMW is the structured invocation data of transclusions and extensions.
type DataMW struct {
	Parts []Part            `json:"parts,omitempty"`
	Name  string            `json:"name,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Body  *ExtBody          `json:"body,omitempty"`
}

// Clone returns a deep copy by way of JSON.
func (mw *DataMW) Clone() *DataMW {
	if mw == nil {
		return nil
	}
	b, err := json.Marshal(mw)
	if err != nil {
		return nil
	}
	var c DataMW
	if err := json.Unmarshal(b, &c); err != nil {
		return nil
	}
	return &c
}

// DataMWEqual compares two attachments structurally. Parameter order does
// not matter.
func DataMWEqual(a, b *DataMW) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return jsonEqual(a, b)
}

// DataParsoidEqual compares two attachments structurally.
func DataParsoidEqual(a, b *DataParsoid) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return jsonEqual(a, b)
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var av, bv any
	if json.Unmarshal(ab, &av) != nil || json.Unmarshal(bb, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
