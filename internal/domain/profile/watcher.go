package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
)

// SnapshotFunc receives a profile snapshot. A nil profile with a nil error
// means the profile does not exist.
type SnapshotFunc func(p *UserProfile, err error)

// Watcher delivers live profile snapshots driven by change events.
type Watcher struct {
	repo   Repository
	bus    pubsub.Bus
	logger zerolog.Logger
}

func NewWatcher(repo Repository, bus pubsub.Bus, logger zerolog.Logger) *Watcher {
	return &Watcher{repo: repo, bus: bus, logger: logger.With().Str("component", "profile-watcher").Logger()}
}

// Watch reads the profile of uid now and again after every change published
// for it. Calls to fn are serialized; bursts of changes are coalesced into
// one re-read. cancel stops the watch without waiting for an in-flight call,
// so it is safe to call from anywhere, including fn.
func (w *Watcher) Watch(ctx context.Context, uid string, fn SnapshotFunc) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	kick := make(chan struct{}, 1)
	kick <- struct{}{}

	unsubscribe := w.bus.Subscribe(pubsub.DocTopic(docstore.Usuarios, uid), func(pubsub.Event) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
			}
			p, err := w.repo.GetByID(ctx, uid)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrProfileNotFound) {
				p, err = nil, nil
			}
			if err != nil {
				w.logger.Warn().Err(err).Str("uid", uid).Msg("profile snapshot failed")
			}
			fn(p, err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			stop()
		})
	}
}
