package steps

import (
	"encoding/json"
	"fmt"
)

// PageContentResolver renders rich "page object" content owned by the host
// platform. Implementations live outside this service; the renderer only
// needs the rendered text.
type PageContentResolver interface {
	RenderPageContent(pageID int64) (string, error)
}

// PlayerStep is the wire shape consumed by the step player. Fields are
// omitted (not null) when empty so the player applies its defaults.
type PlayerStep struct {
	Element     string `json:"element,omitempty"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	Placement   string `json:"placement,omitempty"`
	Orphan      bool   `json:"orphan,omitempty"`
	OnNext      string `json:"onNext,omitempty"`
	OnPrev      string `json:"onPrev,omitempty"`
	OnShow      string `json:"onShow,omitempty"`
	OnShown     string `json:"onShown,omitempty"`
	OnHide      string `json:"onHide,omitempty"`
	Path        string `json:"path,omitempty"`
	ElementType string `json:"elementType,omitempty"`
	ElementName string `json:"elementName,omitempty"`
}

// RenderScript serializes the steps of a tour into the player's JSON step
// format. Rich page content supersedes the plain content when it resolves;
// any resolution failure falls back to the plain content.
func RenderScript(list []Step, resolver PageContentResolver) (string, error) {
	rendered := make([]PlayerStep, len(list))
	for i, step := range list {
		rendered[i] = toPlayerStep(step, resolver)
	}

	data, err := json.Marshal(rendered)
	if err != nil {
		return "", fmt.Errorf("failed to render step script: %w", err)
	}
	return string(data), nil
}

func toPlayerStep(step Step, resolver PageContentResolver) PlayerStep {
	content := step.Content
	if step.ContentPageID != nil && resolver != nil {
		if richText, err := resolver.RenderPageContent(*step.ContentPageID); err == nil && richText != "" {
			content = richText
		}
	}

	// The player defaults placement itself, so the default is left out of
	// the wire format rather than repeated on every step.
	placement := CoercePlacement(string(step.Placement))
	if placement == PlacementRight {
		placement = ""
	}

	return PlayerStep{
		Element:     step.Element,
		Title:       step.Title,
		Content:     content,
		Placement:   string(placement),
		Orphan:      step.Orphan,
		OnNext:      step.OnNext,
		OnPrev:      step.OnPrev,
		OnShow:      step.OnShow,
		OnShown:     step.OnShown,
		OnHide:      step.OnHide,
		Path:        step.Path,
		ElementType: string(step.ElementType),
		ElementName: step.ElementName,
	}
}
