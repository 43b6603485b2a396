package savedb

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/savedb/savetest"
)

// checkContainer verifies that every occupied slot index is in range and
// unique, that the counts add up and that each pal agrees on its placement.
func checkContainer(t *testing.T, d *Document, id gvas.GUID) {
	t.Helper()
	c, err := d.CharacterContainer(id)
	if err != nil {
		t.Fatalf("CharacterContainer: %v", err)
	}
	seen := make(map[int]bool)
	for _, s := range c.Slots() {
		if s.Index < 0 || s.Index >= c.Capacity() {
			t.Fatalf("container %s: slot %d out of range (capacity %d)", id, s.Index, c.Capacity())
		}
		if seen[s.Index] {
			t.Fatalf("container %s: slot %d occupied twice", id, s.Index)
		}
		seen[s.Index] = true
		p, err := d.Pal(s.Slot.InstanceID)
		if err != nil {
			t.Fatalf("container %s slot %d holds unknown pal: %v", id, s.Index, err)
		}
		if p.ContainerID() != id || p.SlotIndex() != s.Index {
			t.Fatalf("pal %s thinks it is at %s/%d, container says %s/%d",
				p.InstanceID(), p.ContainerID(), p.SlotIndex(), id, s.Index)
		}
	}
	if c.Occupied()+c.Free() != c.Capacity() {
		t.Fatalf("container %s: occupied %d + free %d != %d", id, c.Occupied(), c.Free(), c.Capacity())
	}
}

func TestConcurrentAddPal(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)

	const n = 20
	added := make([]*entity.Pal, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			added[i], errs[i] = d.AddPal(w.Player.PalBox, "PinkCat", "", AnySlot)
		}(i)
	}
	wg.Wait()

	slots := make(map[int]bool)
	for i := range added {
		if errs[i] != nil || added[i] == nil {
			t.Fatalf("AddPal %d = %v, %v", i, added[i], errs[i])
		}
		idx := added[i].SlotIndex()
		if idx == 0 || slots[idx] {
			t.Errorf("slot %d handed out twice", idx)
		}
		slots[idx] = true
	}
	checkContainer(t, d, w.Player.PalBox)
	c, _ := d.CharacterContainer(w.Player.PalBox)
	if c.Occupied() != n+1 {
		t.Errorf("occupied = %d, want %d", c.Occupied(), n+1)
	}
}

func TestRandomEditsKeepContainersConsistent(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	rng := rand.New(rand.NewSource(42))
	containers := []gvas.GUID{w.Player.PalBox, w.Player.Party}

	pick := func() (gvas.GUID, bool) {
		c, _ := d.CharacterContainer(containers[rng.Intn(len(containers))])
		ids := c.Instances()
		if len(ids) == 0 {
			return gvas.GUID{}, false
		}
		return ids[rng.Intn(len(ids))], true
	}

	for step := 0; step < 500; step++ {
		switch op := rng.Intn(4); op {
		case 0, 1:
			target := containers[rng.Intn(len(containers))]
			if _, err := d.AddPal(target, "SheepBall", "", AnySlot); err != nil {
				t.Fatalf("step %d: AddPal: %v", step, err)
			}
		case 2:
			if id, ok := pick(); ok {
				if err := d.DeletePal(id); err != nil {
					t.Fatalf("step %d: DeletePal: %v", step, err)
				}
			}
		case 3:
			if id, ok := pick(); ok {
				target := containers[rng.Intn(len(containers))]
				if _, err := d.MovePal(w.Player.UID, id, target); err != nil {
					t.Fatalf("step %d: MovePal: %v", step, err)
				}
			}
		}
		for _, id := range containers {
			checkContainer(t, d, id)
		}
	}

	p, _ := d.Player(w.Player.UID)
	held := 0
	for _, id := range containers {
		c, _ := d.CharacterContainer(id)
		held += c.Occupied()
	}
	if len(p.Pals) != held {
		t.Errorf("player lists %d pals, containers hold %d", len(p.Pals), held)
	}
}
