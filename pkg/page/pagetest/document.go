// Package pagetest provides an in-memory host page for tests.
//
// The document is a real HTML tree parsed with golang.org/x/net/html and
// queried with cascadia selectors, so features under test see the same
// selector semantics as in a browser. Navigation and mutation sources are
// driven by hand with Navigator.Fire and Observer.Mutate.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/entrhq/tubeforge/pkg/page"
)

// StyleAttr is the attribute carrying the owner id on injected style nodes.
const StyleAttr = "data-tubeforge-style"

// EvalFunc answers Evaluate calls.
type EvalFunc func(script string, arg any) (any, error)

// Document is a fake page.Document.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	url      string
	eval     EvalFunc
	shots    map[string][]byte
	bindings map[string]func(args ...any)

	queries int
	live    int
}

var _ page.Document = (*Document)(nil)

// NewDocument parses markup into a document located at url.
func NewDocument(url, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return &Document{
		root:     root,
		url:      url,
		shots:    make(map[string][]byte),
		bindings: make(map[string]func(args ...any)),
	}, nil
}

// MustDocument is NewDocument that panics on error.
func MustDocument(url, markup string) *Document {
	d, err := NewDocument(url, markup)
	if err != nil {
		panic(err)
	}
	return d
}

// URL returns the current location.
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// SetURL changes the location without firing any event.
func (d *Document) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

// Query returns the first element matching selector.
func (d *Document) Query(ctx context.Context, selector string) (page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries++

	n := cascadia.Query(d.root, sel)
	if n == nil {
		return nil, nil
	}
	d.live++
	return &Element{doc: d, node: n}, nil
}

// QueryAll returns every element matching selector.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries++

	nodes := cascadia.QueryAll(d.root, sel)
	out := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{doc: d, node: n})
	}
	d.live += len(out)
	return out, nil
}

// Queries returns how many Query/QueryAll calls were made.
func (d *Document) Queries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queries
}

// LiveHandles returns how many elements were handed out and not released.
func (d *Document) LiveHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// InjectStyle appends a <style> node tagged with id to <head>.
func (d *Document) InjectStyle(ctx context.Context, id, css string) (page.Style, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	node := &html.Node{
		Type: html.ElementNode,
		Data: "style",
		Attr: []html.Attribute{{Key: StyleAttr, Val: id}},
	}
	node.AppendChild(&html.Node{Type: html.TextNode, Data: css})

	parent := cascadia.Query(d.root, cascadia.MustCompile("head"))
	if parent == nil {
		parent = d.root
	}
	parent.AppendChild(node)
	return &Style{doc: d, id: id, node: node}, nil
}

// Styles returns the css text of every injected style owned by id.
func (d *Document) Styles(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for _, n := range cascadia.QueryAll(d.root, cascadia.MustCompile("style["+StyleAttr+"]")) {
		if attr(n, StyleAttr) != id {
			continue
		}
		if n.FirstChild != nil {
			out = append(out, n.FirstChild.Data)
		} else {
			out = append(out, "")
		}
	}
	return out
}

// OnEvaluate installs the handler answering Evaluate.
func (d *Document) OnEvaluate(fn EvalFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eval = fn
}

// Evaluate forwards to the OnEvaluate handler; without one it returns nil.
func (d *Document) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	fn := d.eval
	d.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(script, arg)
}

// SetScreenshot sets the bytes returned when selector is captured.
func (d *Document) SetScreenshot(selector string, png []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shots[selector] = png
}

// Screenshot returns the bytes set with SetScreenshot when selector matches.
func (d *Document) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := d.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	el.Release()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shots[selector], nil
}

// Bind records fn under name.
func (d *Document) Bind(ctx context.Context, name string, fn func(args ...any)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings[name] = fn
	return nil
}

// CallBinding invokes the binding as page script would. It reports whether a
// binding exists.
func (d *Document) CallBinding(name string, args ...any) bool {
	d.mu.Lock()
	fn, ok := d.bindings[name]
	d.mu.Unlock()
	if !ok {
		return false
	}
	fn(args...)
	return true
}

// AppendHTML parses fragment and appends it to the first element matching
// parentSelector.
func (d *Document) AppendHTML(parentSelector, fragment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel, err := cascadia.Compile(parentSelector)
	if err != nil {
		return fmt.Errorf("compile selector %q: %w", parentSelector, err)
	}
	parent := cascadia.Query(d.root, sel)
	if parent == nil {
		return fmt.Errorf("no element matches %q", parentSelector)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// HTML renders the current tree.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	_ = html.Render(&b, d.root)
	return b.String()
}

// Element is a node of a fake Document.
type Element struct {
	doc      *Document
	node     *html.Node
	released bool
}

// Release returns the handle to its document's live count.
func (e *Element) Release() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.released {
		return
	}
	e.released = true
	e.doc.live--
}

// Attribute returns the attribute value and whether it is present.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// SetAttribute sets or replaces an attribute.
func (e *Element) SetAttribute(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return nil
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

// RemoveAttribute deletes an attribute if present.
func (e *Element) RemoveAttribute(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	attrs := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Key != name {
			attrs = append(attrs, a)
		}
	}
	e.node.Attr = attrs
	return nil
}

// Remove detaches the node from its parent.
func (e *Element) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if e.node.Parent == nil {
		return page.ErrDetached
	}
	e.node.Parent.RemoveChild(e.node)
	return nil
}

// Style is an injected <style> node.
type Style struct {
	doc  *Document
	id   string
	node *html.Node
}

// ID returns the owner tag.
func (s *Style) ID() string {
	return s.id
}

// Remove detaches the style node. Removing twice is a no-op.
func (s *Style) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	if s.node.Parent != nil {
		s.node.Parent.RemoveChild(s.node)
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
