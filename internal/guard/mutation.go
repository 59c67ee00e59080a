// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is a markup tree whose insertions can be observed.
type Document interface {
	Observe(fn func(added []*html.Node)) (stop func())
}

// HTMLDocument is an in-memory HTML page. Fragments are appended to the
// body and every observer sees the inserted nodes before Insert returns.
// Observers must not call Insert.
type HTMLDocument struct {
	root *html.Node
	body *html.Node

	mu        sync.Mutex
	observers map[int]func([]*html.Node)
	nextID    int
}

// NewHTMLDocument creates an empty page with the given title.
func NewHTMLDocument(title string) (*HTMLDocument, error) {
	src := fmt.Sprintf("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body></body></html>",
		html.EscapeString(title))
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	body := findElement(root, atom.Body)
	if body == nil {
		return nil, fmt.Errorf("parse document: no body")
	}
	return &HTMLDocument{root: root, body: body, observers: make(map[int]func([]*html.Node))}, nil
}

// AddStyle appends a <style> element holding css to the head. Styles are
// trusted page chrome and are not passed to observers.
func (d *HTMLDocument) AddStyle(css string) {
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})

	d.mu.Lock()
	defer d.mu.Unlock()
	if head := findElement(d.root, atom.Head); head != nil {
		head.AppendChild(style)
	}
}

// Observe registers fn for future insertions.
func (d *HTMLDocument) Observe(fn func(added []*html.Node)) (stop func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

// Insert parses fragment in body context, appends it to the body and
// notifies observers.
func (d *HTMLDocument) Insert(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), d.body)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range nodes {
		d.body.AppendChild(n)
	}
	for _, fn := range d.observers {
		fn(nodes)
	}
	return nil
}

// Render serialises the whole page.
func (d *HTMLDocument) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// =============================================================================
// MUTATION WATCH
// =============================================================================

// activeElements are removed unless they load from the origin.
var activeElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Iframe: true,
	atom.Frame:  true,
	atom.Object: true,
	atom.Embed:  true,
}

// urlAttributes are stripped when they carry a javascript: URL.
var urlAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"xlink:href": true,
}

// MutationWatch removes foreign active content from inserted markup.
type MutationWatch struct {
	originHost string
	logger     *slog.Logger
	checked    atomic.Int64
	removed    atomic.Int64
	stripped   atomic.Int64
}

// MutationStats counts what the watch has removed.
type MutationStats struct {
	CheckedInserts     int64
	RemovedElements    int64
	StrippedAttributes int64
}

// NewMutationWatch creates a watch treating originHost as same-origin.
func NewMutationWatch(originHost string, logger *slog.Logger) *MutationWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &MutationWatch{originHost: normalizeHost(originHost), logger: logger}
}

// Attach subscribes the watch to doc.
func (w *MutationWatch) Attach(doc Document) (stop func()) {
	return doc.Observe(w.Handle)
}

// Handle sanitises a batch of inserted nodes in place.
func (w *MutationWatch) Handle(added []*html.Node) {
	w.checked.Add(1)
	for _, n := range added {
		w.sanitize(n)
	}
}

// Stats returns the running totals.
func (w *MutationWatch) Stats() MutationStats {
	return MutationStats{
		CheckedInserts:     w.checked.Load(),
		RemovedElements:    w.removed.Load(),
		StrippedAttributes: w.stripped.Load(),
	}
}

func (w *MutationWatch) sanitize(n *html.Node) {
	if n.Type == html.ElementNode {
		if activeElements[n.DataAtom] && !w.sameOrigin(n) {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			w.removed.Add(1)
			w.logger.Debug("MARKUP_ELEMENT_REMOVED", "tag", n.Data)
			return
		}
		w.stripAttributes(n)
	}

	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for _, c := range children {
		w.sanitize(c)
	}
}

func (w *MutationWatch) stripAttributes(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" {
			key = strings.ToLower(a.Namespace) + ":" + key
		}
		if strings.HasPrefix(key, "on") || (urlAttributes[key] && isScriptURL(a.Val)) {
			w.stripped.Add(1)
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// sameOrigin reports whether an active element loads from the origin.
// Elements without a source are inline and never same-origin.
func (w *MutationWatch) sameOrigin(n *html.Node) bool {
	key := "src"
	if n.DataAtom == atom.Object {
		key = "data"
	}
	var src string
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			src = strings.TrimSpace(a.Val)
		}
	}
	if src == "" || isScriptURL(src) {
		return false
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	return w.originHost != "" && normalizeHost(u.Host) == w.originHost
}

func isScriptURL(v string) bool {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:")
}
