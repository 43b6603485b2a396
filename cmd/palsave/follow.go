package main

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
)

// follower prints the events of one player as they happen in the shell.
type follower struct {
	mu     sync.Mutex
	out    io.Writer
	name   string
	closed bool
}

func (f *follower) Receive(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	fmt.Fprintf(f.out, "[%s] %s %s %s\n", f.name, ev.Type, ev.Subject, ev.Text)
}

func (f *follower) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *follower) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// following is a followed player and the uids its subscriber is
// registered under.
type following struct {
	sub  *follower
	uids []gvas.GUID
}

// cmdFollow subscribes to the events of a player. Pals of a host-migrated
// player are owned under the uid recorded in the file, so both uids are
// followed. Without arguments it lists the followed players.
func (a *app) cmdFollow(args []string) error {
	if len(args) == 0 {
		keys := make([]gvas.GUID, 0, len(a.follows))
		for uid := range a.follows {
			keys = append(keys, uid)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, uid := range keys {
			f := a.follows[uid]
			a.printf("%s %-20s %d subscriber(s)\n", uid, f.sub.name, a.bus.OwnerSubscribers(f.uids[0]))
		}
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: follow [PLAYER]")
	}
	uid, err := parseID(args[0])
	if err != nil {
		return err
	}
	p, err := a.doc.Player(uid)
	if err != nil {
		return err
	}
	if _, ok := a.follows[p.UID]; ok {
		return fmt.Errorf("already following %s", p.UID)
	}
	f := following{sub: &follower{out: a.out, name: p.Nickname()}, uids: []gvas.GUID{p.UID}}
	if rec := p.RecordedUID(); !rec.IsZero() && rec != p.UID {
		f.uids = append(f.uids, rec)
	}
	for _, id := range f.uids {
		a.bus.Subscribe(id, f.sub)
	}
	if a.follows == nil {
		a.follows = make(map[gvas.GUID]following)
	}
	a.follows[p.UID] = f
	a.printf("Following %s (%s)\n", p.Nickname(), p.UID)
	return nil
}

func (a *app) cmdUnfollow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: unfollow PLAYER")
	}
	uid, err := parseID(args[0])
	if err != nil {
		return err
	}
	if p, err := a.doc.Player(uid); err == nil {
		uid = p.UID
	}
	f, ok := a.follows[uid]
	if !ok {
		return fmt.Errorf("not following %s", uid)
	}
	for _, id := range f.uids {
		a.bus.Unsubscribe(id, f.sub)
	}
	delete(a.follows, uid)
	a.printf("Stopped following %s\n", uid)
	return nil
}

// unfollowAll closes every follower and drops them from the bus.
func (a *app) unfollowAll() {
	for uid, f := range a.follows {
		f.sub.close()
		delete(a.follows, uid)
	}
	a.bus.Cleanup()
}
