package mood

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one of the six coarse emotion buckets used for charts.
type Category string

const (
	Happy   Category = "happy"
	Neutral Category = "neutral"
	Sad     Category = "sad"
	Angry   Category = "angry"
	Anxious Category = "anxious"
	Other   Category = "other"
)

// Categories lists every category in enumeration order. The order is also the
// tie-break order for dominant categories.
var Categories = []Category{Happy, Neutral, Sad, Angry, Anxious, Other}

// Label is a selectable mood.
type Label struct {
	Name        string   `yaml:"name" json:"name"`
	Emoji       string   `yaml:"emoji" json:"emoji"`
	Description string   `yaml:"description" json:"description"`
	Category    Category `yaml:"-" json:"category"`
}

//go:embed catalog.yaml
var catalogYAML []byte

var (
	catalog    []Label
	byName     map[string]Label
	defaultEmj = "😐"
)

func init() {
	labels, err := parseCatalog(catalogYAML)
	if err != nil {
		panic(fmt.Sprintf("mood: invalid embedded catalog: %v", err))
	}
	catalog = labels
	byName = make(map[string]Label, len(labels))
	for _, l := range labels {
		byName[l.Name] = l
	}
}

func parseCatalog(data []byte) ([]Label, error) {
	var raw map[Category][]Label
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var out []Label
	seen := make(map[string]bool)
	for _, c := range Categories {
		for _, l := range raw[c] {
			name := strings.TrimSpace(l.Name)
			if name == "" {
				return nil, fmt.Errorf("empty mood name in category %q", c)
			}
			if seen[name] {
				return nil, fmt.Errorf("mood %q listed twice", name)
			}
			seen[name] = true
			l.Name = name
			l.Category = c
			out = append(out, l)
		}
	}
	for c := range raw {
		if !isCategory(c) {
			return nil, fmt.Errorf("unknown category %q", c)
		}
	}
	return out, nil
}

func isCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Catalog returns a copy of every known mood label in display order.
func Catalog() []Label {
	out := make([]Label, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for a mood label.
func Lookup(name string) (Label, bool) {
	l, ok := byName[name]
	return l, ok
}

// CategoryOf maps a mood label to its category. Unknown labels map to Other.
func CategoryOf(name string) Category {
	if l, ok := byName[name]; ok {
		return l.Category
	}
	return Other
}

// EmojiOf returns the emoji for a mood label, with a neutral face for unknown labels.
func EmojiOf(name string) string {
	if l, ok := byName[name]; ok && l.Emoji != "" {
		return l.Emoji
	}
	return defaultEmj
}
