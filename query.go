package matroska

import (
	"regexp"
	"strings"
)

// Closest walks e's ancestor chain, inclusive of e itself, returning the
// first element whose Name matches pattern (§4.G "closest(name, regex)").
// It returns nil, nil when no ancestor matches.
func (e *Element) Closest(pattern string) (*Element, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	for anc := e; anc != nil; anc = anc.Parent {
		if re.MatchString(anc.Name) {
			return anc, nil
		}
	}
	return nil, nil
}

// Flat resolves a dot-separated child path (e.g. "Info.SegmentUID")
// through containers that have exactly one occurrence of each named step,
// without making a caller index through GetAll when there's nothing to
// disambiguate (§4.D "single-parent flattening": Info[0].SegmentUID
// becomes Info.SegmentUID once Info is known never to have been promoted
// to a sequence). Resolution stops and returns false the moment a step
// names a promoted (multi-valued) child — that ambiguity is exactly what
// flattening declines to paper over.
func (e *Element) Flat(path string) (*Element, bool) {
	cur := e
	for _, step := range strings.Split(path, ".") {
		if cur == nil || cur.Children == nil || cur.Children.IsMultiple(step) {
			return nil, false
		}
		child, ok := cur.Children.Get(step)
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, true
}

// Find walks e's subtree in preorder (e itself first, then each child's
// subtree in file order), returning every element whose Name matches
// pattern (§4.G "find(name, regex)"). Results are deduplicated by pointer
// identity, which matters when Find is invoked starting from an element
// reached through Flat, since that's still the same underlying node as the
// one reachable through the raw GetAll path.
func (e *Element) Find(pattern string) ([]*Element, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var out []*Element
	seen := make(map[*Element]bool)
	var walk func(n *Element)
	walk = func(n *Element) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if re.MatchString(n.Name) {
			out = append(out, n)
		}
		if n.Children == nil {
			return
		}
		for _, name := range n.Children.Names() {
			for _, child := range n.Children.GetAll(name) {
				walk(child)
			}
		}
	}
	walk(e)
	return out, nil
}
