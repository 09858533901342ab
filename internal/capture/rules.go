package capture

import (
	"embed"
	"fmt"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed database/rules.yml
var databaseFiles embed.FS

// RegionEntry matches a named page region by rendered id or by class.
type RegionEntry struct {
	Name       string `yaml:"name"`
	IDRegex    string `yaml:"id_regex"`
	ClassRegex string `yaml:"class_regex"`
}

type dropdownRules struct {
	TriggerClassRegex string `yaml:"trigger_class_regex"`
	MenuClassRegex    string `yaml:"menu_class_regex"`
}

type rulesDatabase struct {
	Regions                   []RegionEntry `yaml:"regions"`
	InteractiveTags           []string      `yaml:"interactive_tags"`
	HeaderTags                []string      `yaml:"header_tags"`
	TablistRole               string        `yaml:"tablist_role"`
	Dropdown                  dropdownRules `yaml:"dropdown"`
	PrimaryButtonClassRegex   string        `yaml:"primary_button_class_regex"`
	ExpandablePanelClassRegex string        `yaml:"expandable_panel_class_regex"`
	TitleMaxLength            int           `yaml:"title_max_length"`
	MaxSelectorDepth          int           `yaml:"max_selector_depth"`
}

// Compiled regex cache
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Global classifier instance
var (
	classifier *elementClassifier
	once       sync.Once
)

type elementClassifier struct {
	rules      rulesDatabase
	regexCache *regexCache
}

func getClassifier() *elementClassifier {
	once.Do(func() {
		classifier = &elementClassifier{
			regexCache: newRegexCache(),
		}

		if data, err := databaseFiles.ReadFile("database/rules.yml"); err == nil {
			if err := yaml.Unmarshal(data, &classifier.rules); err != nil {
				fmt.Printf("Error parsing rules.yml: %v\n", err)
			}
		}

		if classifier.rules.TitleMaxLength <= 0 {
			classifier.rules.TitleMaxLength = 60
		}
		if classifier.rules.MaxSelectorDepth <= 0 {
			classifier.rules.MaxSelectorDepth = 5
		}
	})
	return classifier
}

func (c *elementClassifier) matches(pattern, value string) bool {
	if pattern == "" || value == "" {
		return false
	}
	regex, err := c.regexCache.get(pattern)
	if err != nil {
		return false
	}
	return regex.MatchString(value)
}

func (c *elementClassifier) matchesAnyClass(pattern string, classes []string) bool {
	for _, class := range classes {
		if c.matches(pattern, class) {
			return true
		}
	}
	return false
}

func (c *elementClassifier) regionOf(node *Node) string {
	for _, region := range c.rules.Regions {
		if c.matches(region.IDRegex, node.ID) {
			return region.Name
		}
		if c.matchesAnyClass(region.ClassRegex, node.Classes) {
			return region.Name
		}
	}
	return ""
}

func (c *elementClassifier) isInteractiveTag(tag string) bool {
	for _, candidate := range c.rules.InteractiveTags {
		if candidate == tag {
			return true
		}
	}
	return false
}

func (c *elementClassifier) isHeaderTag(tag string) bool {
	for _, candidate := range c.rules.HeaderTags {
		if candidate == tag {
			return true
		}
	}
	return false
}
