package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Fanout forwards events to every Publisher and digests to every Notifier.
// Individual failures are logged and joined into the returned error.
type Fanout struct {
	mu         sync.RWMutex
	publishers []Publisher
	notifiers  []Notifier
	logger     *zap.Logger
}

// NewFanout returns an empty fanout.
func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger}
}

// AddPublisher registers p for events.
func (f *Fanout) AddPublisher(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishers = append(f.publishers, p)
}

// AddNotifier registers n for digests.
func (f *Fanout) AddNotifier(n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifiers = append(f.notifiers, n)
}

// Empty reports whether nothing is registered.
func (f *Fanout) Empty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.publishers) == 0 && len(f.notifiers) == 0
}

// Publish sends evt to every publisher.
func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	f.mu.RLock()
	pubs := append([]Publisher(nil), f.publishers...)
	f.mu.RUnlock()

	var errs []error
	for _, p := range pubs {
		if err := p.Publish(ctx, evt); err != nil {
			f.logger.Warn("notify: publish failed",
				zap.String("publisher", fmt.Sprintf("%T", p)),
				zap.String("type", evt.Type),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify sends digest to every notifier.
func (f *Fanout) Notify(ctx context.Context, digest Digest) error {
	f.mu.RLock()
	ns := append([]Notifier(nil), f.notifiers...)
	f.mu.RUnlock()

	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, digest); err != nil {
			f.logger.Warn("notify: digest delivery failed",
				zap.String("notifier", fmt.Sprintf("%T", n)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
