package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sendrec/chaptersync/internal/chapter"
)

// DefaultPollInterval is how often the player position is sampled.
const DefaultPollInterval = time.Second

var (
	ErrNotReady = errors.New("player not ready")
	ErrStopped  = errors.New("synchronizer stopped")
)

type Options struct {
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Synchronizer keeps the active chapter in step with the player position.
// Polls, seeks and explicit reconciles are serialized, so currentIndex only
// ever changes from one caller at a time.
type Synchronizer struct {
	index     *chapter.Index
	activator Activator
	view      *View
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	player   Player
	current  int
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopped  bool
}

func New(index *chapter.Index, activator Activator, opts Options) *Synchronizer {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		index:     index,
		activator: activator,
		view:      NewView(),
		interval:  interval,
		logger:    logger,
		current:   -1,
		ctx:       context.Background(),
	}
}

func (s *Synchronizer) View() *View {
	return s.view
}

// CurrentIndex returns the last reconciled chapter, or -1 before the first.
func (s *Synchronizer) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Ready attaches the player, arms the poll loop and reconciles the first
// chapter. The loop runs until ctx is done or Stop is called. Calling Ready
// again only swaps the player.
func (s *Synchronizer) Ready(ctx context.Context, player Player) error {
	if player == nil {
		return ErrNotReady
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.player != nil {
		s.player = player
		return nil
	}

	s.player = player
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.loopDone = make(chan struct{})
	go s.poll(s.ctx, s.loopDone)

	s.logger.Info("sync: player ready", "interval", s.interval)
	return s.reconcileLocked(0)
}

// StateChanged receives player state notifications. Chapter tracking only
// depends on the polled position, so state changes are just logged.
func (s *Synchronizer) StateChanged(state PlayerState) {
	s.logger.Debug("sync: player state changed", "state", state.String())
}

func (s *Synchronizer) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Synchronizer) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.player == nil {
		return
	}
	s.onTickLocked(s.player.CurrentTime())
}

// OnTick refreshes the time readout for t and reconciles when the active
// chapter differs from the last one reconciled. Non-finite positions are
// ignored.
func (s *Synchronizer) OnTick(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.onTickLocked(t)
}

func (s *Synchronizer) onTickLocked(t float64) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		s.logger.Debug("sync: ignoring non-finite position", "time", t)
		return
	}
	s.view.SetTime(chapter.FormatTime(t))
	active := s.index.Resolve(t)
	if active == s.current {
		return
	}
	if err := s.reconcileLocked(active); err != nil {
		s.logger.Error("sync: reconcile failed", "index", active, "error", err)
	}
}

// Reconcile makes chapter i the active one. An index of -1 means the
// position precedes every chapter and is shown as the first chapter.
func (s *Synchronizer) Reconcile(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	return s.reconcileLocked(i)
}

func (s *Synchronizer) reconcileLocked(i int) error {
	if i == -1 {
		i = 0
	}
	ch, err := s.index.At(i)
	if err != nil {
		return err
	}
	s.current = i
	s.view.Highlight(i)
	s.activator.Activate(s.ctx, ch, s.view)
	s.logger.Debug("sync: reconciled", "index", i, "title", ch.Title)
	return nil
}

// ManualSeek jumps the player to chapter i, starts playback and reconciles
// without waiting for the next poll.
func (s *Synchronizer) ManualSeek(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.player == nil {
		return ErrNotReady
	}
	ch, err := s.index.At(i)
	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	s.player.SeekTo(ch.StartTime, true)
	s.player.PlayVideo()
	return s.reconcileLocked(i)
}

// Stop disarms the poll loop, cancels pending side effects and closes the
// view. It is safe to call more than once.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.loopDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.activator.Close()
	s.view.Close()
}
