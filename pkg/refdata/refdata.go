// Package refdata loads localized display names and species stats from a
// YAML file:
//
//	pals:
//	  SheepBall:
//	    hp: 70
//	    names: {en: Lamball, de: Lamball}
//	items:
//	  Wood: {en: Wood, de: Holz}
//	skills:
//	  Legend: {en: Legend}
//
// Ids are matched case-insensitively. A name missing in the configured
// language falls back to English; unknown ids yield "".
package refdata

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fallback is the language used when the configured one has no entry.
const Fallback = "en"

// Species is the reference record of one pal species.
type Species struct {
	HP    float64           `yaml:"hp"`
	Names map[string]string `yaml:"names"`
}

type file struct {
	Pals   map[string]Species           `yaml:"pals"`
	Items  map[string]map[string]string `yaml:"items"`
	Skills map[string]map[string]string `yaml:"skills"`
}

// Names answers name and stat lookups for one language.
type Names struct {
	lang   string
	pals   map[string]Species
	items  map[string]map[string]string
	skills map[string]map[string]string
}

// Load reads a reference data file for lang.
func Load(path, lang string) (*Names, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("refdata: reading %s: %w", path, err)
	}
	n, err := Parse(data, lang)
	if err != nil {
		return nil, fmt.Errorf("refdata: %s: %w", path, err)
	}
	return n, nil
}

// Parse decodes reference data from YAML.
func Parse(data []byte, lang string) (*Names, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	n := &Names{
		lang:   strings.ToLower(lang),
		pals:   make(map[string]Species, len(f.Pals)),
		items:  fold(f.Items),
		skills: fold(f.Skills),
	}
	for id, s := range f.Pals {
		key := strings.ToLower(id)
		if _, dup := n.pals[key]; dup {
			return nil, fmt.Errorf("pal %q listed twice", id)
		}
		if s.HP < 0 {
			return nil, fmt.Errorf("pal %q: negative hp %v", id, s.HP)
		}
		n.pals[key] = s
	}
	return n, nil
}

func fold(m map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for id, names := range m {
		out[strings.ToLower(id)] = names
	}
	return out
}

func (n *Names) pick(names map[string]string) string {
	if s, ok := names[n.lang]; ok {
		return s
	}
	return names[Fallback]
}

// PalName returns the display name of a species.
func (n *Names) PalName(species string) string {
	return n.pick(n.pals[strings.ToLower(species)].Names)
}

// ItemName returns the display name of an item static id.
func (n *Names) ItemName(staticID string) string {
	return n.pick(n.items[strings.ToLower(staticID)])
}

// SkillName returns the display name of a passive or active skill id.
func (n *Names) SkillName(id string) string {
	if i := strings.LastIndex(id, "::"); i >= 0 {
		id = id[i+2:]
	}
	return n.pick(n.skills[strings.ToLower(id)])
}

// HPScale returns the species' HP stat. ok is false for unknown species and
// for entries without an hp value.
func (n *Names) HPScale(species string) (float64, bool) {
	s, ok := n.pals[strings.ToLower(species)]
	if !ok || s.HP == 0 {
		return 0, false
	}
	return s.HP, true
}

// Len reports how many pals, items and skills are known.
func (n *Names) Len() (pals, items, skills int) {
	return len(n.pals), len(n.items), len(n.skills)
}
