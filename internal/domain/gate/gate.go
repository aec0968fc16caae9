package gate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
)

// State is what a client sees of its gate.
type State struct {
	Phase    string               `json:"state"`
	UID      string               `json:"uid,omitempty"`
	Profile  *profile.UserProfile `json:"profile,omitempty"`
	Path     string               `json:"path"`
	Redirect string               `json:"redirect,omitempty"`
}

// ProfileWatcher streams profile snapshots of one identity.
type ProfileWatcher interface {
	Watch(ctx context.Context, uid string, fn profile.SnapshotFunc) (cancel func())
}

type event any

type signedIn struct{ uid string }
type signedOut struct{}
type navigate struct{ path string }

// snapshot is tagged with the watch it came from so results of a watch that
// has since been replaced are dropped.
type snapshot struct {
	watch uint64
	uid   string
	p     *profile.UserProfile
	err   error
}

// Gate is the per-connection state machine. Every input goes through one
// event loop, so transitions never interleave.
type Gate struct {
	watcher ProfileWatcher
	logger  zerolog.Logger
	ctx     context.Context
	stop    context.CancelFunc
	events  chan event
	stopped chan struct{}

	// Owned by the loop goroutine.
	watchID     uint64
	cancelWatch func()

	mu      sync.RWMutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// New starts a gate in the loading phase at path "/". It runs until ctx is
// done or Close is called.
func New(ctx context.Context, watcher ProfileWatcher, logger zerolog.Logger) *Gate {
	ctx, stop := context.WithCancel(ctx)
	g := &Gate{
		watcher: watcher,
		logger:  logger.With().Str("component", "gate").Logger(),
		ctx:     ctx,
		stop:    stop,
		events:  make(chan event),
		stopped: make(chan struct{}),
		state:   State{Phase: PhaseLoading, Path: PathPublic},
		subs:    make(map[int]func(State)),
	}
	go g.run()
	return g
}

func (g *Gate) SignedIn(uid string) { g.send(signedIn{uid: uid}) }
func (g *Gate) SignedOut()          { g.send(signedOut{}) }
func (g *Gate) Navigate(path string) {
	if path == "" {
		path = PathPublic
	}
	g.send(navigate{path: path})
}

// Snapshot returns the current state.
func (g *Gate) Snapshot() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Subscribe registers fn for every state change. fn runs on the gate's loop
// and must not call back into the gate's input methods.
func (g *Gate) Subscribe(fn func(State)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

// Close stops the loop and the profile watch and waits for the loop to exit.
func (g *Gate) Close() {
	g.stop()
	<-g.stopped
}

func (g *Gate) send(e event) {
	select {
	case g.events <- e:
	case <-g.ctx.Done():
	}
}

func (g *Gate) run() {
	defer close(g.stopped)
	defer g.dropWatch()
	for {
		select {
		case <-g.ctx.Done():
			return
		case e := <-g.events:
			g.handle(e)
		}
	}
}

func (g *Gate) handle(e event) {
	next := g.Snapshot()
	next.Redirect = ""

	switch e := e.(type) {
	case signedIn:
		if e.uid == next.UID && g.cancelWatch != nil {
			return
		}
		g.dropWatch()
		next = State{Phase: PhaseLoading, UID: e.uid, Path: next.Path}
		g.startWatch(e.uid)
	case signedOut:
		g.dropWatch()
		next = State{Phase: PhaseUnauthenticated, Path: next.Path}
	case navigate:
		next.Path = e.path
	case snapshot:
		if e.watch != g.watchID || g.cancelWatch == nil {
			g.logger.Debug().Str("uid", e.uid).Msg("discarding snapshot of a replaced identity")
			return
		}
		if e.err != nil {
			g.dropWatch()
			next = State{Phase: PhaseUnauthenticated, Path: next.Path}
			break
		}
		next.Phase = PhaseFor(e.p)
		next.Profile = nil
		if next.Phase != PhaseNoProfile {
			next.Profile = e.p
		}
	}

	if target := Decide(next.Phase, next.Path); target != "" {
		next.Redirect = target
		next.Path = target
	}
	g.publish(next)
}

func (g *Gate) startWatch(uid string) {
	g.watchID++
	id := g.watchID
	g.cancelWatch = g.watcher.Watch(g.ctx, uid, func(p *profile.UserProfile, err error) {
		g.send(snapshot{watch: id, uid: uid, p: p, err: err})
	})
}

// dropWatch cancels the current profile watch. Snapshots it already queued
// carry a stale watch id and are ignored.
func (g *Gate) dropWatch() {
	if g.cancelWatch != nil {
		g.cancelWatch()
		g.cancelWatch = nil
	}
	g.watchID++
}

func (g *Gate) publish(s State) {
	g.mu.Lock()
	g.state = s
	subs := make([]func(State), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
