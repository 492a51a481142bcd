package xmlparser

import (
	"encoding/xml"
	"strings"
)

// Node is one element of a record subtree. Only the matched record element
// and its descendants are materialized; the tree is released as soon as the
// record's fields have been extracted, so memory stays bounded by the size
// of a single record.
type Node struct {
	Name     string
	Text     string
	Children []*Node
}

// Child returns the first direct child with the given local name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildText returns the trimmed text of the first direct child with the
// given local name, or "".
func (n *Node) ChildText(name string) string {
	if c := n.Child(name); c != nil {
		return c.Text
	}
	return ""
}

// All returns every direct child with the given local name.
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// readSubtree consumes tokens from dec until start's matching end element and
// returns the materialized subtree. Namespace prefixes are ignored; elements
// are keyed by local name.
func readSubtree(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{Name: start.Name.Local}
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := readSubtree(dec, t)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.Text = strings.TrimSpace(text.String())
			return n, nil
		}
	}
}
