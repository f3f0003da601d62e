package playback

import (
	"net/url"
	"slices"
	"sync"
)

// Surface is what an Activator may change on the page for a newly active chapter.
type Surface interface {
	ScrollRegion(target string)
	Emphasize(target string)
	ClearEmphasis(target string)
	ShowFrame(address, display string)
}

// Snapshot is the declarative page state the presentation layer renders.
type Snapshot struct {
	ActiveIndex     int      `json:"activeIndex"`
	ListScrollIndex int      `json:"listScrollIndex"`
	DisplayTime     string   `json:"displayTime"`
	ScrollTarget    string   `json:"scrollTarget,omitempty"`
	// ScrollCount increases on every scroll request, including repeats of
	// the same target.
	ScrollCount     uint64   `json:"scrollCount"`
	Emphasized      []string `json:"emphasized"`
	FrameAddress    string   `json:"frameAddress,omitempty"`
	DisplayAddress  string   `json:"displayAddress,omitempty"`
	Revision        uint64   `json:"revision"`
}

// View holds the current Snapshot and fans every change out to subscribers.
// Subscribers only ever see the latest snapshot; stale ones are dropped.
type View struct {
	mu         sync.Mutex
	state      Snapshot
	emphasized map[string]struct{}
	subs       map[int]chan Snapshot
	nextSub    int
	closed     bool
}

func NewView() *View {
	return &View{
		state: Snapshot{
			ActiveIndex:     -1,
			ListScrollIndex: -1,
			DisplayTime:     "0:00",
			Emphasized:      []string{},
		},
		emphasized: make(map[string]struct{}),
		subs:       make(map[int]chan Snapshot),
	}
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.copyLocked()
}

// Subscribe returns a channel that receives the current snapshot immediately
// and every later one. The channel is closed by cancel or by Close.
func (v *View) Subscribe() (<-chan Snapshot, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch
	ch <- v.copyLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(c)
			}
		})
	}
}

// Close ends all subscriptions. Later mutations are ignored.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

// SetTime updates the elapsed-time readout.
func (v *View) SetTime(display string) {
	v.update(func(s *Snapshot) bool {
		if s.DisplayTime == display {
			return false
		}
		s.DisplayTime = display
		return true
	})
}

// Highlight marks entry index as the only active chapter and scrolls the
// chapter list to it.
func (v *View) Highlight(index int) {
	v.update(func(s *Snapshot) bool {
		s.ActiveIndex = index
		s.ListScrollIndex = index
		return true
	})
}

func (v *View) ScrollRegion(target string) {
	v.update(func(s *Snapshot) bool {
		s.ScrollTarget = target
		s.ScrollCount++
		return true
	})
}

func (v *View) Emphasize(target string) {
	v.update(func(s *Snapshot) bool {
		v.emphasized[target] = struct{}{}
		return true
	})
}

func (v *View) ClearEmphasis(target string) {
	v.update(func(s *Snapshot) bool {
		if _, ok := v.emphasized[target]; !ok {
			return false
		}
		delete(v.emphasized, target)
		return true
	})
}

func (v *View) ShowFrame(address, display string) {
	v.update(func(s *Snapshot) bool {
		s.FrameAddress = address
		s.DisplayAddress = display
		return true
	})
}

func (v *View) update(fn func(*Snapshot) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if !fn(&v.state) {
		return
	}
	v.state.Revision++
	snap := v.copyLocked()
	for _, ch := range v.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (v *View) copyLocked() Snapshot {
	s := v.state
	s.Emphasized = make([]string, 0, len(v.emphasized))
	for t := range v.emphasized {
		s.Emphasized = append(s.Emphasized, t)
	}
	slices.Sort(s.Emphasized)
	return s
}

// displayAddress drops the query string so signed URLs stay readable.
func displayAddress(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
