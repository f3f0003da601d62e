package playback

import (
	"math"
	"sync"
	"time"
)

// Player is the video player capability set the synchronizer drives.
type Player interface {
	SeekTo(seconds float64, allowSeekAhead bool)
	PlayVideo()
	CurrentTime() float64
}

// PlayerState mirrors the embedded player's state codes.
type PlayerState int

const (
	StateUnstarted PlayerState = -1
	StateEnded     PlayerState = 0
	StatePlaying   PlayerState = 1
	StatePaused    PlayerState = 2
	StateBuffering PlayerState = 3
	StateCued      PlayerState = 5
)

func (s PlayerState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "unknown"
	}
}

// ClockPlayer is a server-side playhead. The browser reports where its
// embedded player is; between reports the position advances with the clock
// while playing.
type ClockPlayer struct {
	mu       sync.Mutex
	now      func() time.Time
	position float64
	anchor   time.Time
	playing  bool
	duration float64
}

// NewClockPlayer creates a paused player at 0. A nil clock uses time.Now.
func NewClockPlayer(now func() time.Time) *ClockPlayer {
	if now == nil {
		now = time.Now
	}
	return &ClockPlayer{now: now, anchor: now()}
}

// SetDuration caps the playhead. Zero means unknown.
func (p *ClockPlayer) SetDuration(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	p.duration = seconds
}

// SeekTo moves the playhead. allowSeekAhead has no meaning for a virtual
// playhead; every position is seekable.
func (p *ClockPlayer) SeekTo(seconds float64, allowSeekAhead bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.clamp(seconds)
	p.anchor = p.now()
}

func (p *ClockPlayer) PlayVideo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.position = p.currentLocked()
	p.anchor = p.now()
	p.playing = true
}

func (p *ClockPlayer) PauseVideo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.currentLocked()
	p.anchor = p.now()
	p.playing = false
}

// Report records a position observed by the browser's player.
func (p *ClockPlayer) Report(seconds float64, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.clamp(seconds)
	p.anchor = p.now()
	p.playing = playing
}

func (p *ClockPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *ClockPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *ClockPlayer) currentLocked() float64 {
	pos := p.position
	if p.playing {
		pos += p.now().Sub(p.anchor).Seconds()
	}
	return p.clamp(pos)
}

func (p *ClockPlayer) clamp(seconds float64) float64 {
	if seconds < 0 || math.IsNaN(seconds) {
		return 0
	}
	if p.duration > 0 && seconds > p.duration {
		return p.duration
	}
	return seconds
}
