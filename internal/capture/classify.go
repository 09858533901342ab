package capture

import (
	"fmt"
	"strings"

	"tourly/internal/steps"
)

// Region names used by the classification rules.
const (
	RegionMainbar   = "mainbar"
	RegionMetabar   = "metabar"
	RegionContent   = "content"
	RegionToolbar   = "toolbar"
	RegionWorkspace = "workspace"
)

// Classification is the result of resolving a captured element into a
// locator the step player can replay.
type Classification struct {
	ElementType steps.ElementType `json:"element_type"`
	Locator     string            `json:"locator"`
}

// Classify resolves an element snapshot into a stable locator. Priority
// order, first match wins: internal-id lookup in a navigation region,
// text/aria fallback in a navigation region, structural patterns (tabs,
// content headers, toolbars, primary buttons), and finally CSS selector
// synthesis. The selector fallback never yields an empty locator.
func Classify(snapshot *ElementSnapshot) Classification {
	c := getClassifier()
	chain := snapshot.chain()
	region := detectRegion(c, chain)

	if region == RegionMainbar || region == RegionMetabar {
		if result, ok := classifyByInternalID(c, chain, region); ok {
			return result
		}
		if result, ok := classifyByText(c, chain, region); ok {
			return result
		}
	}

	if result, ok := classifyStructural(c, snapshot, chain, region); ok {
		return result
	}

	return Classification{
		ElementType: steps.ElementCSSSelector,
		Locator:     synthesizeSelector(c, chain),
	}
}

// detectRegion finds the innermost named region containing the element.
func detectRegion(c *elementClassifier, chain []*Node) string {
	for _, node := range chain {
		if region := c.regionOf(node); region != "" {
			return region
		}
	}
	return ""
}

// classifyByInternalID walks up the chain looking for a registered
// internal id. Expandable metabar panels resolve to their parent control's
// internal id instead: the panel's own rendered id is not stable once the
// step player overlays it.
func classifyByInternalID(c *elementClassifier, chain []*Node, region string) (Classification, bool) {
	for _, node := range chain {
		if node.InternalID == "" {
			continue
		}

		elementType := steps.ElementMainbar
		locator := node.InternalID

		if region == RegionMetabar {
			elementType = steps.ElementMetabar
			if c.matchesAnyClass(c.rules.ExpandablePanelClassRegex, node.Classes) && node.PanelControlInternalID != "" {
				locator = node.PanelControlInternalID
			}
		}

		return Classification{ElementType: elementType, Locator: locator}, true
	}
	return Classification{}, false
}

// classifyByText uses the nearest interactive ancestor's visible text,
// falling back to its aria-label.
func classifyByText(c *elementClassifier, chain []*Node, region string) (Classification, bool) {
	elementType := steps.ElementMainbar
	if region == RegionMetabar {
		elementType = steps.ElementMetabar
	}

	for _, node := range chain {
		if !c.isInteractiveTag(node.Tag) {
			continue
		}

		locator := node.TrimmedText()
		if locator == "" {
			locator = node.Attr("aria-label")
		}
		if locator == "" {
			continue
		}
		return Classification{ElementType: elementType, Locator: locator}, true
	}
	return Classification{}, false
}

func classifyStructural(c *elementClassifier, snapshot *ElementSnapshot, chain []*Node, region string) (Classification, bool) {
	target := &snapshot.Target

	// Tab widgets win over region patterns: a tablist can sit anywhere.
	if hasRole(chain, c.rules.TablistRole) {
		locator := target.TrimmedText()
		if locator == "" {
			locator = target.ID
		}
		if locator != "" {
			return Classification{ElementType: steps.ElementTab, Locator: locator}, true
		}
	}

	switch region {
	case RegionContent:
		// Generic markers: the locator is intentionally empty, the player
		// resolves "the form area" / "the table area" itself.
		if isTableHeader(chain) {
			return Classification{ElementType: steps.ElementTable}, true
		}
		if c.isHeaderTag(target.Tag) {
			return Classification{ElementType: steps.ElementForm}, true
		}

	case RegionToolbar:
		return classifyToolbar(c, chain, target), true

	case RegionWorkspace:
		if target.Tag == "button" && c.matchesAnyClass(c.rules.PrimaryButtonClassRegex, target.Classes) {
			return Classification{ElementType: steps.ElementButton}, true
		}
	}

	return Classification{}, false
}

// classifyToolbar picks the most specific toolbar case that applies.
func classifyToolbar(c *elementClassifier, chain []*Node, target *Node) Classification {
	for _, node := range chain {
		if c.matchesAnyClass(c.rules.Dropdown.TriggerClassRegex, node.Classes) {
			if text := node.TrimmedText(); text != "" {
				return Classification{ElementType: steps.ElementToolbarDropdownButton, Locator: text}
			}
		}
	}

	for _, node := range chain {
		if c.matchesAnyClass(c.rules.Dropdown.MenuClassRegex, node.Classes) {
			// Menu items are located by id; an item without one degrades to
			// the generic toolbar marker.
			if target.ID != "" {
				return Classification{ElementType: steps.ElementToolbarDropdownItem, Locator: target.ID}
			}
			return Classification{ElementType: steps.ElementToolbar}
		}
	}

	if c.isInteractiveTag(target.Tag) {
		if text := target.TrimmedText(); text != "" {
			return Classification{ElementType: steps.ElementToolbarButton, Locator: text}
		}
	}

	return Classification{ElementType: steps.ElementToolbar}
}

func hasRole(chain []*Node, role string) bool {
	if role == "" {
		return false
	}
	for _, node := range chain {
		if node.Attr("role") == role {
			return true
		}
	}
	return false
}

func isTableHeader(chain []*Node) bool {
	if chain[0].Tag == "th" {
		return true
	}
	for _, node := range chain {
		if node.Tag == "thead" {
			return true
		}
	}
	return false
}

// synthesizeSelector builds a short CSS selector by walking the chain
// outward. An id short-circuits the walk (ids are assumed unique); the
// depth is capped because a short, likely-stable selector beats a
// guaranteed-unique but brittle long one.
func synthesizeSelector(c *elementClassifier, chain []*Node) string {
	var parts []string

	for i, node := range chain {
		if i >= c.rules.MaxSelectorDepth {
			break
		}

		if node.ID != "" {
			parts = append([]string{"#" + node.ID}, parts...)
			return strings.Join(parts, " > ")
		}

		parts = append([]string{nodeSelector(node)}, parts...)
	}

	return strings.Join(parts, " > ")
}

func nodeSelector(node *Node) string {
	tag := node.Tag
	if tag == "" {
		tag = "*"
	}

	var b strings.Builder
	b.WriteString(tag)
	for _, class := range node.Classes {
		if class == "" {
			continue
		}
		b.WriteString(".")
		b.WriteString(class)
	}

	// Same-tag sibling collisions make the bare selector ambiguous.
	if node.SameTagSiblings > 1 && node.NthChild > 0 {
		fmt.Fprintf(&b, ":nth-child(%d)", node.NthChild)
	}

	return b.String()
}

// DeriveTitle picks a step title for a captured element: visible text,
// aria-label, title attribute, else the tag name. Long titles are
// truncated with an ellipsis.
func DeriveTitle(target *Node) string {
	c := getClassifier()

	title := target.TrimmedText()
	if title == "" {
		title = target.Attr("aria-label")
	}
	if title == "" {
		title = target.Attr("title")
	}
	if title == "" {
		title = target.Tag
	}

	if runes := []rune(title); len(runes) > c.rules.TitleMaxLength {
		title = string(runes[:c.rules.TitleMaxLength]) + "…"
	}
	return title
}

// BuildDraft assembles a step draft from a captured snapshot. sortOrder is
// append-only during recording; reordering happens later in the admin UI.
func BuildDraft(snapshot *ElementSnapshot, sortOrder int) steps.Step {
	classification := Classify(snapshot)
	title := DeriveTitle(&snapshot.Target)

	return steps.Step{
		SortOrder:   sortOrder,
		Element:     classification.Locator,
		ElementType: classification.ElementType,
		Title:       title,
		Content:     fmt.Sprintf("Step %d: %s", sortOrder, title),
		Placement:   steps.DefaultPlacement,
	}
}
