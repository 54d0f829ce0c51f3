package domtree

import (
	"strings"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// node is a toy composed tree used to exercise the generic walker.
type node struct {
	name   string
	shadow []*node
	kids   []*node
}

var toy = Accessor[*node]{
	Children:     func(n *node) []*node { return n.kids },
	Encapsulated: func(n *node) []*node { return n.shadow },
}

func TestWalkOrder(t *testing.T) {
	root := &node{name: "root", kids: []*node{
		{name: "a", shadow: []*node{{name: "a.shadow", kids: []*node{{name: "a.s1"}}}}, kids: []*node{{name: "a.1"}}},
		{name: "b"},
	}}

	var got []string
	Walk(root, toy, func(n *node) bool {
		got = append(got, n.name)
		return true
	})

	want := []string{"root", "a", "a.shadow", "a.s1", "a.1", "b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkPrune(t *testing.T) {
	root := &node{name: "root", kids: []*node{
		{name: "skip", shadow: []*node{{name: "hidden"}}, kids: []*node{{name: "hidden.too"}}},
		{name: "keep"},
	}}

	var got []string
	Walk(root, toy, func(n *node) bool {
		got = append(got, n.name)
		return n.name != "skip"
	})
	assert.Equal(t, []string{"root", "skip", "keep"}, got)
}

func TestFindAllNilEncapsulated(t *testing.T) {
	acc := Accessor[*node]{Children: func(n *node) []*node { return n.kids }}
	root := &node{name: "r", shadow: []*node{{name: "x"}}, kids: []*node{{name: "x"}}}

	found := FindAll(root, acc, func(n *node) bool { return n.name == "x" })
	assert.Len(t, found, 1, "shadow children must be invisible without an Encapsulated accessor")
}

func cdpElement(name string, attrs ...string) *cdp.Node {
	return &cdp.Node{NodeType: cdp.NodeTypeElement, LocalName: name, NodeName: strings.ToUpper(name), Attributes: attrs}
}

func shadowRoot(children ...*cdp.Node) *cdp.Node {
	return &cdp.Node{NodeType: cdp.NodeTypeDocumentFragment, NodeName: "#document-fragment", Children: children}
}

func TestFlattenCDP(t *testing.T) {
	item := cdpElement("sp-sidenav-item", "class", "descendant", "label", "Cards")
	host := cdpElement("plugin-renderer")
	host.ShadowRoots = []*cdp.Node{shadowRoot(cdpElement("sp-sidenav", "data-testid", "blocks"))}
	host.ShadowRoots[0].Children[0].Children = []*cdp.Node{item}

	frame := cdpElement("iframe")
	frame.ContentDocument = &cdp.Node{NodeType: cdp.NodeTypeDocument, Children: []*cdp.Node{cdpElement("html")}}

	doc := &cdp.Node{NodeType: cdp.NodeTypeDocument, Children: []*cdp.Node{
		cdpElement("html"),
	}}
	doc.Children[0].Children = []*cdp.Node{host, frame, {NodeType: cdp.NodeTypeText, NodeValue: "text"}}

	flat := FlattenCDP(doc)

	matches, err := Select(flat, "plugin-renderer > sp-sidenav[data-testid=blocks] > sp-sidenav-item.descendant")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	label, ok := Attr(matches[0], "label")
	assert.True(t, ok)
	assert.Equal(t, "Cards", label)
	assert.Equal(t, "sp-sidenav", ParentElement(matches[0]).Data)

	frames, err := Select(flat, "iframe > html")
	require.NoError(t, err)
	assert.Len(t, frames, 1, "content document is spliced under its frame element")
}

func TestFlattenHTMLDeclarativeShadow(t *testing.T) {
	src := `<!doctype html><html><body>
<x-shell>
  <template shadowrootmode="open">
    <x-theme><x-inner><template shadowrootmode="open"><p class="deep">deep</p></template></x-inner></x-theme>
  </template>
  <p class="light">light</p>
</x-shell>
</body></html>`
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)

	plain, err := Select(doc, "x-shell > x-theme")
	require.NoError(t, err)
	assert.Empty(t, plain, "template content is not a child of the host before flattening")

	flat := FlattenHTML(doc)
	ps, err := Select(flat, "p")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	cls, _ := Attr(ps[0], "class")
	assert.Equal(t, "deep", cls, "shadow content precedes light children")

	deep, err := Select(flat, "x-shell > x-theme > x-inner > p.deep")
	require.NoError(t, err)
	assert.Len(t, deep, 1)

	templates, err := Select(flat, "template")
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestSelectInvalid(t *testing.T) {
	_, err := Select(&html.Node{Type: html.DocumentNode}, "div[")
	assert.Error(t, err)
}
