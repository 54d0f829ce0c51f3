// Package domtree walks composed trees: trees in which a node may keep part
// of its subtree behind an encapsulated reference (a shadow root, a frame's
// content document) that ordinary child iteration does not reach.
//
// The walker is generic over the node type. Adapters are provided for CDP
// DOM snapshots and for x/net/html trees that use declarative shadow roots,
// and Flatten turns either into a single html tree that CSS selectors can be
// matched against.
package domtree

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Accessor tells the walker how to reach a node's children.
type Accessor[N any] struct {
	// Children returns the ordinary (light) children.
	Children func(N) []N
	// Encapsulated returns the roots of encapsulated subtrees. May be nil.
	Encapsulated func(N) []N
}

func (a Accessor[N]) encapsulated(n N) []N {
	if a.Encapsulated == nil {
		return nil
	}
	return a.Encapsulated(n)
}

// Walk visits root and all of its composed-tree descendants depth-first in
// document order: a node, then its encapsulated subtrees, then its light
// children. Returning false from visit skips the node's subtree.
func Walk[N any](root N, acc Accessor[N], visit func(N) bool) {
	if !visit(root) {
		return
	}
	for _, c := range acc.encapsulated(root) {
		Walk(c, acc, visit)
	}
	for _, c := range acc.Children(root) {
		Walk(c, acc, visit)
	}
}

// FindAll returns every node in walk order for which match is true.
func FindAll[N any](root N, acc Accessor[N], match func(N) bool) []N {
	var out []N
	Walk(root, acc, func(n N) bool {
		if match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Flatten copies a composed tree into one html tree rooted at a document
// node. Encapsulated subtrees become ordinary children of their host, placed
// before its light children. convert returns the html node for n, or nil to
// splice n out and attach its children to the nearest converted ancestor.
func Flatten[N any](root N, acc Accessor[N], convert func(N) *html.Node) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	var build func(n N, parent *html.Node)
	build = func(n N, parent *html.Node) {
		if h := convert(n); h != nil {
			parent.AppendChild(h)
			parent = h
		}
		for _, c := range acc.encapsulated(n) {
			build(c, parent)
		}
		for _, c := range acc.Children(n) {
			build(c, parent)
		}
	}
	build(root, doc)
	return doc
}

// HTML walks a plain html tree.
var HTML = Accessor[*html.Node]{
	Children: htmlChildren,
}

func htmlChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Select returns the elements of a flattened tree matching a CSS selector,
// in document order.
func Select(root *html.Node, selector string) ([]*html.Node, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return FindAll(root, HTML, func(n *html.Node) bool {
		return n.Type == html.ElementNode && sel.Match(n)
	}), nil
}

// Attr returns the value of the named attribute and whether it was present.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// ParentElement returns the nearest element ancestor, or nil.
func ParentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}
