package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tourly/internal/steps"
)

func mainbarAncestor() Node {
	return Node{Tag: "nav", ID: "mainbar"}
}

func TestClassifyInternalID(t *testing.T) {
	t.Run("mainbar entry with a registered internal id", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "span", Text: "Courses"},
			Ancestors: []Node{
				{Tag: "a", Text: "Courses", InternalID: "nav.courses"},
				mainbarAncestor(),
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementMainbar, result.ElementType)
		assert.Equal(t, "nav.courses", result.Locator)
	})

	t.Run("metabar internal id", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "a", Text: "Notifications", InternalID: "meta.notifications"},
			Ancestors: []Node{
				{Tag: "div", ID: "metabar"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementMetabar, result.ElementType)
		assert.Equal(t, "meta.notifications", result.Locator)
	})

	t.Run("expandable metabar panel resolves to its parent control", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{
				Tag:                    "div",
				Classes:                []string{"collapse"},
				InternalID:             "meta.panel",
				PanelControlInternalID: "meta.panel-toggle",
			},
			Ancestors: []Node{
				{Tag: "div", ID: "metabar"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementMetabar, result.ElementType)
		assert.Equal(t, "meta.panel-toggle", result.Locator)
	})
}

func TestClassifyTextFallback(t *testing.T) {
	t.Run("nearest interactive ancestor text", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "span", Text: "  Courses  "},
			Ancestors: []Node{
				{Tag: "a", Text: " Courses "},
				mainbarAncestor(),
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementMainbar, result.ElementType)
		assert.Equal(t, "Courses", result.Locator)
	})

	t.Run("aria-label when the link has no text", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "i", Classes: []string{"icon-bell"}},
			Ancestors: []Node{
				{Tag: "button", Attributes: map[string]string{"aria-label": "Alerts"}},
				{Tag: "div", ID: "metabar"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementMetabar, result.ElementType)
		assert.Equal(t, "Alerts", result.Locator)
	})

	t.Run("degrades to css selector when text and aria are empty", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "i", Classes: []string{"icon-bell"}},
			Ancestors: []Node{
				{Tag: "div", Classes: []string{"wrapper"}},
				mainbarAncestor(),
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementCSSSelector, result.ElementType)
		assert.NotEmpty(t, result.Locator)
	})
}

func TestClassifyStructural(t *testing.T) {
	t.Run("tab inside a tablist", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "a", Text: "Settings"},
			Ancestors: []Node{
				{Tag: "li"},
				{Tag: "ul", Attributes: map[string]string{"role": "tablist"}},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementTab, result.ElementType)
		assert.Equal(t, "Settings", result.Locator)
	})

	t.Run("tab falls back to the target id", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "a", ID: "tab-grades"},
			Ancestors: []Node{
				{Tag: "ul", Attributes: map[string]string{"role": "tablist"}},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementTab, result.ElementType)
		assert.Equal(t, "tab-grades", result.Locator)
	})

	t.Run("content header is a generic form marker", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "h2", Text: "Edit profile"},
			Ancestors: []Node{
				{Tag: "div", ID: "main-content"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementForm, result.ElementType)
		assert.Empty(t, result.Locator)
	})

	t.Run("table header is a generic table marker", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "th", Text: "Name"},
			Ancestors: []Node{
				{Tag: "thead"},
				{Tag: "table"},
				{Tag: "div", ID: "content"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementTable, result.ElementType)
		assert.Empty(t, result.Locator)
	})

	t.Run("toolbar dropdown button", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "button", Classes: []string{"dropdown-toggle"}, Text: "Actions"},
			Ancestors: []Node{
				{Tag: "div", ID: "toolbar"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementToolbarDropdownButton, result.ElementType)
		assert.Equal(t, "Actions", result.Locator)
	})

	t.Run("toolbar dropdown item located by id", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "a", ID: "action-export", Text: "Export"},
			Ancestors: []Node{
				{Tag: "ul", Classes: []string{"dropdown-menu"}},
				{Tag: "div", ID: "toolbar"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementToolbarDropdownItem, result.ElementType)
		assert.Equal(t, "action-export", result.Locator)
	})

	t.Run("toolbar dropdown item without id degrades to generic toolbar", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "a", Text: "Export"},
			Ancestors: []Node{
				{Tag: "ul", Classes: []string{"dropdown-menu"}},
				{Tag: "div", ID: "toolbar"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementToolbar, result.ElementType)
		assert.Empty(t, result.Locator)
	})

	t.Run("toolbar button by text", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "button", Text: "Save"},
			Ancestors: []Node{
				{Tag: "div", Classes: []string{"btn-toolbar"}},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementToolbarButton, result.ElementType)
		assert.Equal(t, "Save", result.Locator)
	})

	t.Run("primary button in the workspace", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "button", Classes: []string{"btn-primary"}, Text: "Submit"},
			Ancestors: []Node{
				{Tag: "div", ID: "workspace"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementButton, result.ElementType)
		assert.Empty(t, result.Locator)
	})
}

func TestSynthesizeSelector(t *testing.T) {
	t.Run("id short-circuits the walk", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "span", Classes: []string{"label"}},
			Ancestors: []Node{
				{Tag: "div", ID: "sidebar-widget"},
				{Tag: "body"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, steps.ElementCSSSelector, result.ElementType)
		assert.Equal(t, "#sidebar-widget > span.label", result.Locator)
	})

	t.Run("nth-child disambiguates sibling collisions", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "li", Classes: []string{"item"}, NthChild: 3, SameTagSiblings: 5},
			Ancestors: []Node{
				{Tag: "ul", ID: "item-list"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, "#item-list > li.item:nth-child(3)", result.Locator)
	})

	t.Run("depth is capped", func(t *testing.T) {
		snapshot := &ElementSnapshot{
			Target: Node{Tag: "em"},
			Ancestors: []Node{
				{Tag: "span"}, {Tag: "p"}, {Tag: "div"}, {Tag: "section"},
				{Tag: "article"}, {Tag: "main"}, {Tag: "body"},
			},
		}

		result := Classify(snapshot)
		assert.Equal(t, "section > div > p > span > em", result.Locator)
	})

	t.Run("never empty for a bare target", func(t *testing.T) {
		snapshot := &ElementSnapshot{Target: Node{Tag: "div"}}

		result := Classify(snapshot)
		assert.Equal(t, "div", result.Locator)
	})
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name   string
		target Node
		want   string
	}{
		{"visible text wins", Node{Tag: "a", Text: " Courses ", Attributes: map[string]string{"aria-label": "nope"}}, "Courses"},
		{"aria-label fallback", Node{Tag: "button", Attributes: map[string]string{"aria-label": "Close dialog"}}, "Close dialog"},
		{"title attribute fallback", Node{Tag: "img", Attributes: map[string]string{"title": "Profile photo"}}, "Profile photo"},
		{"tag name as last resort", Node{Tag: "canvas"}, "canvas"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveTitle(&tc.target))
		})
	}

	t.Run("long titles are truncated with an ellipsis", func(t *testing.T) {
		long := Node{Tag: "p", Text: "This is a very long heading that keeps going and going well past any sensible popover width"}
		title := DeriveTitle(&long)
		assert.Len(t, []rune(title), 61)
		assert.Equal(t, "…", string([]rune(title)[60]))
	})
}

func TestBuildDraft(t *testing.T) {
	snapshot := &ElementSnapshot{
		Target: Node{Tag: "a", Text: "Courses"},
		Ancestors: []Node{
			{Tag: "li"},
			mainbarAncestor(),
		},
	}

	draft := BuildDraft(snapshot, 3)
	assert.Equal(t, 3, draft.SortOrder)
	assert.Equal(t, steps.ElementMainbar, draft.ElementType)
	assert.Equal(t, "Courses", draft.Element)
	assert.Equal(t, "Courses", draft.Title)
	assert.Equal(t, steps.DefaultPlacement, draft.Placement)
	assert.NotEmpty(t, draft.Content)
}
