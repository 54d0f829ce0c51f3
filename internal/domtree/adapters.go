package domtree

import (
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CDP walks a pierced DOM snapshot (DOM.getDocument with pierce set):
// shadow roots and frame content documents are the encapsulated subtrees.
var CDP = Accessor[*cdp.Node]{
	Children: func(n *cdp.Node) []*cdp.Node { return n.Children },
	Encapsulated: func(n *cdp.Node) []*cdp.Node {
		if n.ContentDocument == nil {
			return n.ShadowRoots
		}
		out := make([]*cdp.Node, 0, len(n.ShadowRoots)+1)
		out = append(out, n.ShadowRoots...)
		return append(out, n.ContentDocument)
	},
}

// FromCDP converts element nodes and splices out documents, fragments, and
// character data.
func FromCDP(n *cdp.Node) *html.Node {
	if n.NodeType != cdp.NodeTypeElement {
		return nil
	}
	name := n.LocalName
	if name == "" {
		name = strings.ToLower(n.NodeName)
	}
	el := element(name)
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		el.Attr = append(el.Attr, html.Attribute{Key: n.Attributes[i], Val: n.Attributes[i+1]})
	}
	return el
}

// FlattenCDP flattens a pierced DOM snapshot.
func FlattenCDP(doc *cdp.Node) *html.Node {
	return Flatten(doc, CDP, FromCDP)
}

// DeclarativeShadow walks a parsed html document in which shadow roots are
// written as <template shadowrootmode="open|closed">.
var DeclarativeShadow = Accessor[*html.Node]{
	Children: func(n *html.Node) []*html.Node {
		var out []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !isShadowTemplate(c) {
				out = append(out, c)
			}
		}
		return out
	},
	Encapsulated: func(n *html.Node) []*html.Node {
		var out []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isShadowTemplate(c) {
				out = append(out, c)
			}
		}
		return out
	},
}

func isShadowTemplate(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Template {
		return false
	}
	_, ok := Attr(n, "shadowrootmode")
	return ok
}

// FromHTML copies elements and splices out shadow templates and
// non-element nodes.
func FromHTML(n *html.Node) *html.Node {
	if n.Type != html.ElementNode || isShadowTemplate(n) {
		return nil
	}
	el := element(n.Data)
	el.Attr = append(el.Attr, n.Attr...)
	return el
}

// FlattenHTML flattens a parsed document that uses declarative shadow roots.
func FlattenHTML(doc *html.Node) *html.Node {
	return Flatten(doc, DeclarativeShadow, FromHTML)
}

func element(name string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     name,
		DataAtom: atom.Lookup([]byte(name)),
	}
}
