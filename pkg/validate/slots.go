package validate

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/savedb"
)

// DuplicateSlotChecker finds containers where two occupied slots share an
// index. The game keeps one of them and the other is lost on next save.
type DuplicateSlotChecker struct{}

func (c *DuplicateSlotChecker) Name() string { return "duplicate-slot" }

func (c *DuplicateSlotChecker) Check(doc *savedb.Document) []Finding {
	var findings []Finding
	dup := func(container gvas.GUID, kind string, index int, n int) {
		findings = append(findings, Finding{
			Category:    CatDuplicateSlot,
			Severity:    SevError,
			Subject:     container,
			Slot:        index,
			Description: fmt.Sprintf("%s container %s has %d entries at slot %d", kind, container, n, index),
		})
	}
	for _, cc := range doc.CharacterContainers() {
		seen := make(map[int]int)
		for _, s := range cc.Slots() {
			seen[s.Index]++
		}
		for index, n := range seen {
			if n > 1 {
				dup(cc.ID, "character", index, n)
			}
		}
	}
	for _, ic := range doc.ItemContainers() {
		seen := make(map[int32]int)
		for _, s := range ic.Slots() {
			seen[s.SlotIndex]++
		}
		for index, n := range seen {
			if n > 1 {
				dup(ic.ID, "item", int(index), n)
			}
		}
	}
	return findings
}
