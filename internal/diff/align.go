package diff

import "golang.org/x/net/html"

const (
	weightShallow = 1
	weightDeep    = 2
)

// align computes an edit script from olds to news. Shallow-equal pairs
// are anchors; subtrees that are identical weigh more so that an
// unchanged node is preferred over a same-tag neighbour. Between anchors,
// leftover elements with the same tag are paired as modified wrappers.
func (df *differ) align(olds, news []*html.Node) []op {
	n, m := len(olds), len(news)
	weight := make([][]int, n)
	for i := range olds {
		weight[i] = make([]int, m)
		for j := range news {
			switch {
			case !df.cmp.Shallow(olds[i], news[j]):
			case df.cmp.Deep(olds[i], news[j]):
				weight[i][j] = weightDeep
			default:
				weight[i][j] = weightShallow
			}
		}
	}

	// best[i][j] is the maximum weight aligning olds[i:] with news[j:].
	best := make([][]int, n+1)
	for i := range best {
		best[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			v := max(best[i+1][j], best[i][j+1])
			if w := weight[i][j]; w > 0 && best[i+1][j+1]+w > v {
				v = best[i+1][j+1] + w
			}
			best[i][j] = v
		}
	}

	var ops []op
	var gapOld, gapNew []*html.Node
	flushGap := func() {
		ops = append(ops, pairGap(gapOld, gapNew)...)
		gapOld, gapNew = nil, nil
	}
	i, j := 0, 0
	for i < n && j < m {
		if w := weight[i][j]; w > 0 && best[i][j] == best[i+1][j+1]+w {
			flushGap()
			ops = append(ops, op{kind: opMatch, old: olds[i], new: news[j]})
			i++
			j++
			continue
		}
		if best[i+1][j] >= best[i][j+1] {
			gapOld = append(gapOld, olds[i])
			i++
		} else {
			gapNew = append(gapNew, news[j])
			j++
		}
	}
	gapOld = append(gapOld, olds[i:]...)
	gapNew = append(gapNew, news[j:]...)
	flushGap()
	return ops
}

// pairGap turns an unaligned stretch into ops, pairing same-tag elements
// in order. Deletions are emitted ahead of the new nodes that replace
// them.
func pairGap(olds, news []*html.Node) []op {
	matchOf := make([]int, len(news))
	oi := 0
	for t, nn := range news {
		matchOf[t] = -1
		if nn.Type != html.ElementNode {
			continue
		}
		for k := oi; k < len(olds); k++ {
			if olds[k].Type == html.ElementNode && olds[k].Data == nn.Data {
				matchOf[t] = k
				oi = k + 1
				break
			}
		}
	}

	var ops []op
	oi = 0
	deleteUpTo := func(k int) {
		for ; oi < k; oi++ {
			ops = append(ops, op{kind: opDelete, old: olds[oi]})
		}
	}
	for t, nn := range news {
		if k := matchOf[t]; k >= 0 {
			deleteUpTo(k)
			ops = append(ops, op{kind: opMatch, old: olds[k], new: nn})
			oi = k + 1
			continue
		}
		next := len(olds)
		for u := t + 1; u < len(news); u++ {
			if matchOf[u] >= 0 {
				next = matchOf[u]
				break
			}
		}
		deleteUpTo(next)
		ops = append(ops, op{kind: opInsert, new: nn})
	}
	deleteUpTo(len(olds))
	return ops
}
