package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sendrec/chaptersync/internal/chapter"
)

// DefaultEmphasisDuration is how long a scrolled-to region stays emphasized.
const DefaultEmphasisDuration = time.Second

// Activator performs the one navigation side effect for a newly active chapter.
type Activator interface {
	Activate(ctx context.Context, ch chapter.Chapter, surface Surface)
	Close()
}

// scheduleFunc runs f after d and returns a function that cancels it.
type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ScrollActivator scrolls the chapter's region into view and emphasizes it.
// The emphasis is cleared after a fixed delay no matter what happened since,
// so a second activation of the same region inside the window is cut short.
type ScrollActivator struct {
	duration time.Duration
	schedule scheduleFunc

	mu      sync.Mutex
	pending map[int]func() bool
	nextID  int
	closed  bool
}

func NewScrollActivator(emphasis time.Duration) *ScrollActivator {
	if emphasis <= 0 {
		emphasis = DefaultEmphasisDuration
	}
	return &ScrollActivator{
		duration: emphasis,
		schedule: afterFunc,
		pending:  make(map[int]func() bool),
	}
}

func (a *ScrollActivator) Activate(_ context.Context, ch chapter.Chapter, surface Surface) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	surface.ScrollRegion(ch.Target)
	surface.Emphasize(ch.Target)

	id := a.nextID
	a.nextID++
	target := ch.Target
	a.pending[id] = a.schedule(a.duration, func() {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
		surface.ClearEmphasis(target)
	})
}

// Close cancels emphasis reverts that have not fired yet.
func (a *ScrollActivator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for id, stop := range a.pending {
		stop()
		delete(a.pending, id)
	}
}

// AddressResolver turns a chapter target into a loadable resource address.
type AddressResolver interface {
	Resolve(ctx context.Context, target string) (string, error)
}

// URLSigner is the part of object storage needed to hand out read URLs.
type URLSigner interface {
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// StorageResolver passes http(s) targets through and presigns object keys.
type StorageResolver struct {
	signer URLSigner
	expiry time.Duration
}

func NewStorageResolver(signer URLSigner, expiry time.Duration) *StorageResolver {
	return &StorageResolver{signer: signer, expiry: expiry}
}

func (r *StorageResolver) Resolve(ctx context.Context, target string) (string, error) {
	key, isObject := strings.CutPrefix(target, chapter.ObjectPrefix)
	if !isObject {
		if !chapter.IsAddress(target) {
			return "", fmt.Errorf("target %q is not a resource address", target)
		}
		return target, nil
	}
	if r.signer == nil {
		return "", errors.New("object storage not configured")
	}
	address, err := r.signer.GenerateDownloadURL(ctx, key, r.expiry)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return address, nil
}

// FrameActivator swaps the display frame to the chapter's resource. It skips
// the swap when the target matches the last one applied.
type FrameActivator struct {
	resolver AddressResolver
	timeout  time.Duration

	mu   sync.Mutex
	last string
}

func NewFrameActivator(resolver AddressResolver) *FrameActivator {
	return &FrameActivator{resolver: resolver, timeout: 10 * time.Second}
}

func (a *FrameActivator) Activate(ctx context.Context, ch chapter.Chapter, surface Surface) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch.Target == a.last {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	address, err := a.resolver.Resolve(ctx, ch.Target)
	if err != nil {
		slog.Warn("sync: frame target did not resolve", "target", ch.Target, "error", err)
		return
	}
	surface.ShowFrame(address, displayAddress(address))
	a.last = ch.Target
}

func (a *FrameActivator) Close() {}
