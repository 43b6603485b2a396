package validate

import (
	"encoding/json"
	"io"

	"github.com/crystal-mush/palsave/pkg/savedb"
)

// Report is the JSON form of a validation run printed by "validate -json".
type Report struct {
	Save          savedb.Counts          `json:"save"`
	TotalFindings int                    `json:"total_findings"`
	Severities    map[string]int         `json:"severities"`
	Categories    map[string]CategorySum `json:"categories"`
	Findings      []Finding              `json:"findings"`
}

// CategorySum summarizes findings for a single category.
type CategorySum struct {
	Total   int    `json:"total"`
	Fixable int    `json:"fixable"`
	Fixed   int    `json:"fixed"`
	Label   string `json:"label"`
}

var categoryLabels = map[Category]string{
	CatDanglingRef:       "Dangling Dynamic Item References",
	CatContainerMismatch: "Pal Placement Mismatches",
	CatOrphanMember:      "Guild Members Without Players",
	CatOrphanBase:        "Bases Without Guilds",
	CatDuplicateSlot:     "Duplicate Slot Indexes",
}

// MarshalText writes the category name, e.g. "dangling-ref".
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// MarshalText writes the severity name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// GenerateReport builds a Report from the validator's current findings and
// the entity counts of its document.
func GenerateReport(v *Validator) *Report {
	r := &Report{
		Save:          v.doc.Counts(),
		TotalFindings: len(v.findings),
		Severities:    make(map[string]int),
		Categories:    make(map[string]CategorySum),
		Findings:      v.findings,
	}
	for _, f := range v.findings {
		r.Severities[f.Severity.String()]++
		cs, ok := r.Categories[f.Category.String()]
		if !ok {
			cs.Label = categoryLabels[f.Category]
		}
		cs.Total++
		if f.Fixable {
			cs.Fixable++
		}
		if f.Fixed {
			cs.Fixed++
		}
		r.Categories[f.Category.String()] = cs
	}
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
