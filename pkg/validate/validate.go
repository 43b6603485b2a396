// Package validate runs consistency checks over a loaded save. Each check
// yields findings; some carry a fix that repairs the document in place.
// Nothing is changed until a fix is applied.
package validate

import (
	"fmt"
	"sort"

	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/savedb"
)

// Category classifies the type of finding.
type Category int

const (
	CatDanglingRef       Category = iota // Item slot points at a missing dynamic item
	CatContainerMismatch                 // Pal and container disagree on placement
	CatOrphanMember                      // Guild lists a player that does not exist
	CatOrphanBase                        // Base belongs to a missing guild
	CatDuplicateSlot                     // Two slots of a container share an index
)

func (c Category) String() string {
	switch c {
	case CatDanglingRef:
		return "dangling-ref"
	case CatContainerMismatch:
		return "container-mismatch"
	case CatOrphanMember:
		return "orphan-member"
	case CatOrphanBase:
		return "orphan-base"
	case CatDuplicateSlot:
		return "duplicate-slot"
	default:
		return "unknown"
	}
}

// Severity indicates how serious a finding is.
type Severity int

const (
	SevError   Severity = iota // The game is likely to misbehave
	SevWarning                 // Should be reviewed
	SevInfo                    // Informational only
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	case SevInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Finding represents a single issue detected in the save.
type Finding struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Subject     gvas.GUID `json:"subject"`
	Related     gvas.GUID `json:"related"`
	Slot        int       `json:"slot,omitempty"`
	Description string    `json:"description"`
	Effect      string    `json:"effect,omitempty"`
	Fixable     bool      `json:"fixable"`
	Fixed       bool      `json:"fixed"`
	fixFunc     func() error
}

// Checker is the interface that each check implements.
type Checker interface {
	Name() string
	Check(doc *savedb.Document) []Finding
}

// Validator orchestrates running all checkers against a document.
type Validator struct {
	checkers []Checker
	doc      *savedb.Document
	findings []Finding
}

// New creates a Validator with all built-in checkers registered.
func New(doc *savedb.Document) *Validator {
	return &Validator{
		doc: doc,
		checkers: []Checker{
			&DanglingRefChecker{},
			&ContainerChecker{},
			&MemberChecker{},
			&BaseChecker{},
			&DuplicateSlotChecker{},
		},
	}
}

// Run executes all checkers and returns findings sorted by category, then
// subject. Finding IDs are assigned after sorting so they are stable for a
// given document.
func (v *Validator) Run() []Finding {
	v.findings = nil
	for _, c := range v.checkers {
		v.findings = append(v.findings, c.Check(v.doc)...)
	}
	sort.SliceStable(v.findings, func(i, j int) bool {
		a, b := v.findings[i], v.findings[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Subject != b.Subject {
			return a.Subject.String() < b.Subject.String()
		}
		return a.Slot < b.Slot
	})
	for i := range v.findings {
		v.findings[i].ID = fmt.Sprintf("%s-%d", v.findings[i].Category, i)
	}
	return v.findings
}

// Findings returns the current findings (after Run has been called).
func (v *Validator) Findings() []Finding {
	return v.findings
}

// ApplyFix applies a single fix by finding ID. Returns error if not found or not fixable.
func (v *Validator) ApplyFix(id string) error {
	for i := range v.findings {
		f := &v.findings[i]
		if f.ID != id {
			continue
		}
		if !f.Fixable {
			return fmt.Errorf("finding %s is not fixable", id)
		}
		if f.Fixed {
			return fmt.Errorf("finding %s is already fixed", id)
		}
		if f.fixFunc != nil {
			if err := f.fixFunc(); err != nil {
				return fmt.Errorf("finding %s: %w", id, err)
			}
			f.Fixed = true
		}
		return nil
	}
	return fmt.Errorf("finding %s not found", id)
}

// ApplyAll applies all fixable findings in the given category. Returns count of fixes applied.
func (v *Validator) ApplyAll(cat Category) int {
	count := 0
	for i := range v.findings {
		f := &v.findings[i]
		if f.Category == cat && f.Fixable && !f.Fixed && f.fixFunc != nil {
			if err := f.fixFunc(); err != nil {
				continue
			}
			f.Fixed = true
			count++
		}
	}
	return count
}

// Summary returns counts of findings per category.
func (v *Validator) Summary() map[Category]int {
	m := make(map[Category]int)
	for _, f := range v.findings {
		m[f.Category]++
	}
	return m
}

// SummaryByStatus returns counts of fixed vs unfixed findings per category.
func (v *Validator) SummaryByStatus() map[Category][2]int {
	m := make(map[Category][2]int) // [0]=unfixed, [1]=fixed
	for _, f := range v.findings {
		counts := m[f.Category]
		if f.Fixed {
			counts[1]++
		} else {
			counts[0]++
		}
		m[f.Category] = counts
	}
	return m
}
