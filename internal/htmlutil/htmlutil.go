// Package htmlutil has small traversal helpers for x/net/html trees,
// shared by the scraping adapters and the form-submitting appliers.
package htmlutil

import (
	"strings"

	"golang.org/x/net/html"
)

// Walk runs fn depth-first over n and its descendants. Returning false
// from fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Attr returns the value of the named attribute, or "" when absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Text collects the node's text content, joining fragments with spaces.
func Text(n *html.Node) string {
	var sb strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strings.TrimSpace(c.Data))
		}
		return true
	})
	return strings.TrimSpace(sb.String())
}

// FirstElement returns the first descendant element with the given tag
// name, or nil.
func FirstElement(n *html.Node, name string) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.Data == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// Elements returns every descendant element whose tag name is in names.
func Elements(n *html.Node, names ...string) []*html.Node {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			if _, ok := set[c.Data]; ok {
				out = append(out, c)
			}
		}
		return true
	})
	return out
}

// NextSiblingElement returns the next sibling element with the given
// tag name, or nil.
func NextSiblingElement(n *html.Node, name string) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.Data == name {
			return s
		}
	}
	return nil
}
