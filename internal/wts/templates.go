package wts

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/dgallion1/wtselser/internal/templatedata"
	"golang.org/x/net/html"
)

const (
	inlineFormat = "{{_|_=_}}"
	blockFormat  = "{{_\n| _ = _\n}}"
)

var (
	formatStringRe       = regexp.MustCompile(`^(\n)?(\{\{ *_+)(\n? *\|\n? *_+ *= *)(_+)(\n? *\}\})(\n)?$`)
	trailingNlCommentsRe = regexp.MustCompile(`\n(?:\s|<!--[\s\S]*?-->)*$`)
	holeRe               = regexp.MustCompile(`_+`)
)

type partKind int

const (
	partTemplate partKind = iota
	partTemplateArg
	partParserFunction
)

// tplFormat is a parsed templatedata format string.
type tplFormat struct {
	sol, eol   bool
	start, end string
	paramName  string
	paramValue string
	// custom is false when the inline default stands in for a missing or
	// malformed format.
	custom bool
}

func parseFormat(format string) tplFormat {
	switch strings.ToLower(format) {
	case "block":
		format = blockFormat
	case "inline":
		format = inlineFormat
	}
	m := formatStringRe.FindStringSubmatch(format)
	custom := m != nil
	if m == nil {
		m = formatStringRe.FindStringSubmatch(inlineFormat)
	}
	return tplFormat{
		sol:        m[1] != "",
		start:      m[2],
		paramName:  m[3],
		paramValue: m[4],
		end:        m[5],
		eol:        m[6] != "",
		custom:     custom,
	}
}

// formatStringSubst fills the first run of underscores in format with
// value, padding value with spaces to the width of the run.
func formatStringSubst(format, value string, forceTrim bool) string {
	if forceTrim {
		value = strings.TrimSpace(value)
	}
	loc := holeRe.FindStringIndex(format)
	if loc == nil {
		return format
	}
	if value != "" {
		if pad := (loc[1] - loc[0]) - utf8.RuneCountInString(value); pad > 0 {
			value += strings.Repeat(" ", pad)
		}
	}
	return format[:loc[0]] + value + format[loc[1]:]
}

type sortOrder struct {
	order, dist int
}

type aliasOf struct {
	key   string
	order int
}

// paramComparator orders template parameters. Parameters keep the place
// of the nearest parameter that was already in the source, new ones sit
// next to their templatedata neighbours, and data-mw order breaks ties.
func paramComparator(argInfo []dom.ParamInfo, td *templatedata.TemplateData, keys []string) func(a, b string) int {
	newOrder := make(map[string]sortOrder, len(keys))
	for i, k := range keys {
		newOrder[k] = sortOrder{order: i}
	}

	tdOrder := make(map[string]sortOrder)
	aliases := make(map[string]aliasOf)
	var tdKeys []string
	if td != nil {
		for i, k := range td.ParamOrder {
			tdOrder[k] = sortOrder{order: i}
			aliases[k] = aliasOf{key: k, order: -1}
			tdKeys = append(tdKeys, k)
			for j, alias := range td.Aliases(k) {
				aliases[alias] = aliasOf{key: k, order: j}
			}
		}
	}

	origOrder := make(map[string]sortOrder, len(argInfo))
	for i, ai := range argInfo {
		origOrder[ai.K] = sortOrder{order: i}
	}
	// A canonical key takes the place of an alias found in the source.
	for _, ai := range argInfo {
		if canon, ok := aliases[ai.K]; ok {
			if _, seen := origOrder[canon.key]; !seen {
				origOrder[canon.key] = origOrder[ai.K]
			}
		}
	}

	nearest := make(map[string]sortOrder, len(origOrder))
	for k, v := range origOrder {
		nearest[k] = v
	}
	reduce := func(acc sortOrder, key string) sortOrder {
		if o, ok := origOrder[key]; ok {
			acc = o
		}
		if cur, ok := nearest[key]; !ok || cur.dist >= acc.dist {
			nearest[key] = acc
		}
		return sortOrder{order: acc.order, dist: acc.dist + 1}
	}
	acc := sortOrder{order: -1, dist: 2 * len(tdKeys)}
	for _, k := range tdKeys {
		acc = reduce(acc, k)
	}
	acc = sortOrder{order: len(origOrder), dist: len(tdKeys)}
	for i := len(tdKeys) - 1; i >= 0; i-- {
		acc = reduce(acc, tdKeys[i])
	}

	big := max(len(nearest), len(newOrder))
	get := func(m map[string]sortOrder, key, fallback string) int {
		if _, ok := m[key]; !ok && fallback != "" {
			key = fallback
		}
		if o, ok := m[key]; ok {
			return o.order
		}
		return big
	}
	canonical := func(k string) aliasOf {
		if c, ok := aliases[k]; ok {
			return c
		}
		return aliasOf{key: k, order: -1}
	}

	return func(a, b string) int {
		ac, bc := canonical(a), canonical(b)
		if ao, bo := get(nearest, a, ac.key), get(nearest, b, bc.key); ao != bo {
			return ao - bo
		}
		if ac.key == bc.key {
			return ac.order - bc.order
		}
		if ao, bo := get(tdOrder, ac.key, ""), get(tdOrder, bc.key, ""); ao != bo {
			return ao - bo
		}
		return get(newOrder, a, "") - get(newOrder, b, "")
	}
}

type tplArg struct {
	key   string
	name  string
	value string
	named bool
}

// serializePart appends one transclusion or template argument to buf.
func (st *State) serializePart(buf string, n *html.Node, kind partKind, part *dom.Transclusion, td *templatedata.TemplateData, prev, next *dom.Part) string {
	format := ""
	if td != nil {
		format = td.Format
	}
	f := parseFormat(format)
	forceTrim := f.custom || st.doc.IsNew(n)

	var argInfo []dom.ParamInfo
	if dp := st.doc.DataParsoid(n); dp != nil && part.I >= 0 && part.I < len(dp.PI) {
		argInfo = dp.PI[part.I]
	}
	infoByKey := make(map[string]dom.ParamInfo, len(argInfo))
	for _, ai := range argInfo {
		infoByKey[ai.K] = ai
	}

	kv := make(map[string]tplArg, len(part.Params))
	keys := make([]string, 0, len(part.Params))
	for _, p := range part.Params {
		key := strings.TrimSpace(p.Name)
		var value string
		switch {
		case p.WT != nil:
			value = *p.WT
		case p.HTML != nil:
			value = st.htmlToWikitext(*p.HTML)
		}
		arg := tplArg{key: key, name: key, value: value, named: infoByKey[key].Named}
		if p.Key != nil {
			arg.name = p.Key.WT
			arg.named = true
		}
		if _, dup := kv[key]; !dup {
			keys = append(keys, key)
		}
		kv[key] = arg
	}

	// Without a declared format, a multi-line value turns the whole call
	// into block layout.
	if !f.custom && st.edited(n) {
		for _, k := range keys {
			_, err := strconv.Atoi(k)
			if (kv[k].named || err != nil) && strings.Contains(kv[k].value, "\n") {
				f = parseFormat("block")
				f.custom = false
				break
			}
		}
	}

	start, end := f.start, f.end
	if kind == partTemplateArg {
		start = strings.Replace(start, "{{", "{{{", 1)
		end = strings.Replace(end, "}}", "}}}", 1)
	}

	lead := st.sep.src
	if prev != nil {
		lead = buf
	}
	if f.sol && !strings.HasSuffix(lead, "\n") {
		buf += "\n"
	}

	buf += formatStringSubst(start, part.Target.WT, forceTrim)
	if len(keys) == 0 {
		return buf + end
	}

	order := slices.Clone(keys)
	slices.SortStableFunc(order, paramComparator(argInfo, td, keys))

	numPositional := 0
	for _, ai := range argInfo {
		if _, ok := kv[ai.K]; ok && !ai.Named {
			numPositional++
		}
	}

	type outArg struct {
		key, name, value string
		positional       bool
	}
	var args []outArg
	numeric := 1
	for i, key := range order {
		arg := kv[key]
		v, named := escapeTplArg(arg.value, tplArgOpts{
			serializeAsNamed:   arg.named || key != strconv.Itoa(numeric),
			templateArg:        kind == partTemplateArg,
			argPositionalIndex: numeric,
			numPositionalArgs:  numPositional,
			argIndex:           i + 1,
			numArgs:            len(keys),
		})
		if named {
			args = append(args, outArg{key: key, name: arg.name, value: strings.TrimSpace(v)})
			continue
		}
		numeric++
		args = append(args, outArg{key: key, value: v, positional: true})
	}

	for _, a := range args {
		var nameFmt, valueFmt string
		switch {
		case a.positional:
			nameFmt, valueFmt = "|_", "_"
		case a.name == "":
			nameFmt, valueFmt = "|_=", "_"
		default:
			spc := infoByKey[a.key].Spc
			if len(spc) == 4 && (!f.custom || commentRe.MatchString(spc[3])) {
				nl := ""
				if strings.HasPrefix(f.paramName, "\n") {
					nl = "\n"
				}
				nameFmt = nl + "|" + spc[0] + "_" + spc[1] + "=" + spc[2]
				valueFmt = "_" + spc[3]
			} else {
				nameFmt, valueFmt = f.paramName, f.paramValue
			}
		}
		if trailingNlCommentsRe.MatchString(buf) && strings.HasPrefix(f.paramName, "\n") {
			nameFmt = f.paramName[1:]
		}
		buf += formatStringSubst(nameFmt, a.name, forceTrim)
		buf += formatStringSubst(valueFmt, a.value, forceTrim)
	}

	if trailingNlCommentsRe.MatchString(buf) && strings.HasPrefix(end, "\n") {
		buf += end[1:]
	} else {
		buf += end
	}

	if f.eol {
		switch {
		case next == nil:
			following := dom.NextAfterEncapsulated(n)
			for following != nil && (dom.IsComment(following) || dom.IsDiffMarkerNode(following)) {
				following = following.NextSibling
			}
			if !dom.IsText(following) || !strings.HasPrefix(following.Data, "\n") {
				buf += "\n"
			}
		case next.Transclusion() != nil || !strings.HasPrefix(next.Text, "\n"):
			buf += "\n"
		}
	}
	return buf
}

func (st *State) edited(n *html.Node) bool {
	return st.doc.IsNew(n) || st.marks.HasAny(n)
}

// serializeFromParts rebuilds the source of a transclusion from its
// data-mw parts. Templatedata is only consulted for edited wrappers.
func (st *State) serializeFromParts(n *html.Node, parts []dom.Part) string {
	useTplData := st.edited(n)
	var buf string
	for i := range parts {
		part := &parts[i]
		var prev, next *dom.Part
		if i > 0 {
			prev = &parts[i-1]
		}
		if i+1 < len(parts) {
			next = &parts[i+1]
		}
		switch {
		case part.TemplateArg != nil:
			buf = st.serializePart(buf, n, partTemplateArg, part.TemplateArg, nil, prev, next)
		case part.Template != nil:
			tpl := part.Template
			kind := partParserFunction
			var td *templatedata.TemplateData
			if tpl.Target.Href != "" {
				kind = partTemplate
				if useTplData {
					td = st.templateData(n, hrefToTitle(tpl.Target.Href))
				}
			}
			buf = st.serializePart(buf, n, kind, tpl, td, prev, next)
		default:
			buf += part.Text
		}
	}
	return buf
}

// templateData looks up title. Lookup failures are faults; the part is
// then laid out with the default format.
func (st *State) templateData(n *html.Node, title string) *templatedata.TemplateData {
	ctx := st.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	td, err := st.tpl.Fetch(ctx, title)
	if err != nil {
		st.fault(KindTemplateDataUnavailable, n.Data, fmt.Errorf("templatedata %q: %w", title, err))
		return nil
	}
	if !td.Usable() {
		return nil
	}
	return td
}

// htmlToWikitext serializes a parameter given only as HTML.
func (st *State) htmlToWikitext(src string) string {
	doc, err := dom.Parse(src)
	if err != nil {
		st.fault(KindDataFault, "param", err)
		return ""
	}
	out, err := st.ser.Render(st.ctx, doc, doc.Body)
	if err != nil {
		st.fault(KindDataFault, "param", err)
		return ""
	}
	return out
}

// serializeExtension writes <name attrs>body</name>, self-closing the tag
// when there is no body.
func (st *State) serializeExtension(n *html.Node, mw *dom.DataMW, name string) string {
	var b strings.Builder
	b.WriteString("<" + name)
	keys := make([]string, 0, len(mw.Attrs))
	for k := range mw.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString(" " + k + `="` + escapeAttrValue(mw.Attrs[k]) + `"`)
	}
	if mw.Body == nil {
		b.WriteString(" />")
		return b.String()
	}
	b.WriteString(">")
	switch {
	case mw.Body.ExtSrc != "":
		b.WriteString(mw.Body.ExtSrc)
	case mw.Body.HTML != "":
		b.WriteString(st.htmlToWikitext(mw.Body.HTML))
	}
	b.WriteString("</" + name + ">")
	return b.String()
}

// encapsulatedHandler writes template, template argument and extension
// output from data-mw. The whole about-group is consumed.
type encapsulatedHandler struct{ baseHandler }

func (encapsulatedHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	dp := st.doc.DataParsoidOrEmpty(n)
	mw := st.doc.DataMW(n)
	after := dom.NextAfterEncapsulated(n)

	var src string
	extName, isExt := dom.TypeOfWithPrefix(n, "mw:Extension/")
	switch {
	case dom.HasTypeOf(n, "mw:Transclusion") || dom.HasTypeOf(n, "mw:Param"):
		if mw != nil && len(mw.Parts) > 0 {
			src = st.serializeFromParts(n, mw.Parts)
			break
		}
		st.fault(KindDataFault, n.Data, errMissingDataMW)
		if dp.Src == "" {
			return after
		}
		src = dp.Src
	case isExt:
		name := strings.TrimPrefix(extName, "mw:Extension/")
		if mw != nil && mw.Name != "" {
			name = mw.Name
		}
		if mw == nil {
			mw = &dom.DataMW{}
		}
		switch {
		case mw.Name != "" || dp.Src == "":
			if mw.Name == "" {
				st.fault(KindDataFault, n.Data, errMissingDataMW)
			}
			src = st.serializeExtension(n, mw, name)
		default:
			st.fault(KindDataFault, n.Data, errMissingDataMW)
			src = dp.Src
		}
	default:
		if dp.Src == "" {
			st.fault(KindDataFault, n.Data, errMissingDataMW)
			return after
		}
		src = dp.Src
	}

	st.singleLine.disable()
	st.emitWikitext(st.listPrefix(n)+src, n)
	st.singleLine.pop()
	return after
}

func (encapsulatedHandler) before(*State, *html.Node, *html.Node) nlConstraint { return nl(0, 2) }

var listParents = map[string][]string{
	"li": {"ul", "ol"},
	"dt": {"dl"},
	"dd": {"dl"},
}

// listPrefix returns the bullets a templated list item needs when its
// containers were not part of the template source.
func (st *State) listPrefix(n *html.Node) string {
	if !dom.IsList(n) && !dom.IsListItem(n) {
		return ""
	}
	if st.parentBulletsEmitted(n) || dom.PreviousNonSepSibling(n) != nil || !st.tplListWithoutSharedPrefix(n) {
		return ""
	}
	if n.Data == "dd" && st.doc.Stx(n) == "row" {
		return ""
	}
	return st.listBullets(n.Parent)
}

func (st *State) parentBulletsEmitted(n *html.Node) bool {
	switch {
	case st.doc.IsLiteralHTML(n):
		return true
	case dom.IsList(n):
		return !dom.IsListItem(n.Parent)
	}
	p := n.Parent
	for st.isBuilderInserted(p) {
		p = p.Parent
	}
	return p == nil || !slices.Contains(listParents[n.Data], p.Data)
}

func (st *State) tplListWithoutSharedPrefix(n *html.Node) bool {
	switch {
	case dom.HasTypeOf(n, "mw:Transclusion"):
		mw := st.doc.DataMW(n)
		if mw == nil || len(mw.Parts) == 0 || mw.Parts[0].Transclusion() != nil {
			return true
		}
		return !listBulletsRe.MatchString(mw.Parts[0].Text)
	case dom.HasTypeOf(n, "mw:Param"):
		return true
	default:
		_, ok := dom.TypeOfWithPrefix(n, "mw:Extension/")
		return ok
	}
}
