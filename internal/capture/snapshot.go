// Package capture classifies a captured page element into a stable,
// portable step locator. The player SDK serializes the hovered element and
// its ancestor chain into an ElementSnapshot; classification itself is
// pure and runs server-side, so the heuristics can be tested without a
// browser in the loop.
package capture

import "strings"

// Node is one element in a captured ancestor chain, as serialized by the
// player SDK.
type Node struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Text       string            `json:"text,omitempty"`

	// InternalID is the host platform's stable component id for this node,
	// registered out-of-band by the page's component decorators. Empty when
	// the node has no registry entry.
	InternalID string `json:"internal_id,omitempty"`

	// PanelControlInternalID carries the internal id of an expandable
	// panel's parent control (its previous sibling). Only set on panel
	// nodes.
	PanelControlInternalID string `json:"panel_control_internal_id,omitempty"`

	// NthChild is the node's 1-based position among all sibling elements;
	// SameTagSiblings counts siblings sharing the node's tag (including
	// itself). Used for selector disambiguation.
	NthChild        int `json:"nth_child,omitempty"`
	SameTagSiblings int `json:"same_tag_siblings,omitempty"`
}

// Attr returns a trimmed attribute value, or ""
func (n *Node) Attr(name string) string {
	if n.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(n.Attributes[name])
}

// TrimmedText returns the node's visible text with surrounding whitespace
// removed
func (n *Node) TrimmedText() string {
	return strings.TrimSpace(n.Text)
}

// ElementSnapshot is the wire shape posted by the player SDK on capture:
// the target element plus its ancestor chain ordered nearest-first.
type ElementSnapshot struct {
	Target    Node   `json:"target"`
	Ancestors []Node `json:"ancestors,omitempty"`
}

// chain returns the target followed by its ancestors, nearest-first.
func (s *ElementSnapshot) chain() []*Node {
	nodes := make([]*Node, 0, len(s.Ancestors)+1)
	nodes = append(nodes, &s.Target)
	for i := range s.Ancestors {
		nodes = append(nodes, &s.Ancestors[i])
	}
	return nodes
}

// Fingerprint identifies the captured element well enough to suppress
// immediate duplicate captures of the same node. Not a stable locator.
func (s *ElementSnapshot) Fingerprint() string {
	var b strings.Builder
	b.WriteString(s.Target.Tag)
	b.WriteString("#")
	b.WriteString(s.Target.ID)
	b.WriteString(".")
	b.WriteString(strings.Join(s.Target.Classes, "."))
	b.WriteString("|")
	b.WriteString(s.Target.TrimmedText())
	return b.String()
}
