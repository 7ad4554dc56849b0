package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// actorIdleTimeout stops actor goroutines for sessions that have gone quiet.
// The session buffer itself is never dropped; a later request re-attaches a
// fresh actor to the same buffer.
const actorIdleTimeout = 10 * time.Minute

// Registry maps session identifiers to conversation memory and provides
// per-session serialization without blocking unrelated sessions.
//
// Creation is an atomic check-then-insert under one mutex: concurrent first
// requests for the same new id observe exactly one buffer. Exchanges for one
// session flow through that session's actor goroutine, so replies within a
// session are strictly ordered even under concurrent requests.
type Registry struct {
	svc *Service

	mu       sync.Mutex
	sessions map[string]*Session
	actors   map[string]*sessionActor
	closed   bool
}

func newRegistry(svc *Service) *Registry {
	return &Registry{
		svc:      svc,
		sessions: make(map[string]*Session),
		actors:   make(map[string]*sessionActor),
	}
}

// GetOrCreate returns the session for id, constructing an empty one on first
// use. Repeated calls never replace an existing buffer.
func (r *Registry) GetOrCreate(id string) *Session {
	if r == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		return s
	}
	maxTurns := 0
	if r.svc != nil {
		maxTurns = r.svc.maxTurns
	}
	s := &Session{ID: id, Buffer: NewBuffer(maxTurns)}
	r.sessions[id] = s
	return s
}

// Len returns the number of distinct sessions ever created.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// actor returns a live actor for id, creating the session as needed.
func (r *Registry) actor(id string) *sessionActor {
	if r == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	sess := r.sessions[id]
	if sess == nil {
		maxTurns := 0
		if r.svc != nil {
			maxTurns = r.svc.maxTurns
		}
		sess = &Session{ID: id, Buffer: NewBuffer(maxTurns)}
		r.sessions[id] = sess
	}

	if a := r.actors[id]; a != nil && a.alive() {
		return a
	}
	a := newSessionActor(r, sess)
	r.actors[id] = a
	a.start()
	return a
}

func (r *Registry) removeActor(id string, actor *sessionActor) {
	if r == nil || strings.TrimSpace(id) == "" || actor == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.actors[id]; existing == actor {
		delete(r.actors, id)
	}
}

// Close stops all actor goroutines. Buffers are retained but no further
// exchanges are accepted.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	actors := make([]*sessionActor, 0, len(r.actors))
	for _, a := range r.actors {
		if a != nil {
			actors = append(actors, a)
		}
	}
	r.actors = make(map[string]*sessionActor)
	r.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
}

type cmdExchange struct {
	ctx  context.Context
	text string
	resp chan exchangeResult
}

type exchangeResult struct {
	reply string
	err   error
}

// sessionActor serializes exchanges for one session. The provider call runs
// inside the actor loop, so concurrent messages to one session are handled
// one at a time and replies keep their request order.
type sessionActor struct {
	reg  *Registry
	sess *Session

	inbox  chan cmdExchange
	stopCh chan struct{}
	doneCh chan struct{}

	once sync.Once
}

func newSessionActor(reg *Registry, sess *Session) *sessionActor {
	return &sessionActor{
		reg:    reg,
		sess:   sess,
		inbox:  make(chan cmdExchange, 16),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (a *sessionActor) alive() bool {
	if a == nil {
		return false
	}
	select {
	case <-a.doneCh:
		return false
	default:
		return true
	}
}

func (a *sessionActor) start() {
	if a == nil {
		return
	}
	go a.loop()
}

func (a *sessionActor) stop() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		close(a.stopCh)
	})
	<-a.doneCh
}

// Exchange submits one user utterance and waits for the generated reply.
func (a *sessionActor) Exchange(ctx context.Context, text string) (string, error) {
	if a == nil {
		return "", errors.New("session actor not ready")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ch := make(chan exchangeResult, 1)
	cmd := cmdExchange{ctx: ctx, text: text, resp: ch}

	select {
	case <-a.stopCh:
		return "", errors.New("session actor closed")
	case <-ctx.Done():
		return "", ctx.Err()
	case a.inbox <- cmd:
	}

	select {
	case <-a.stopCh:
		return "", errors.New("session actor closed")
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.reply, res.err
	}
}

func (a *sessionActor) loop() {
	defer close(a.doneCh)
	defer func() {
		if a.reg != nil && a.sess != nil {
			a.reg.removeActor(a.sess.ID, a)
		}
	}()

	idleTimer := time.NewTimer(actorIdleTimeout)
	defer idleTimer.Stop()

	resetIdle := func() {
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(actorIdleTimeout)
	}

	for {
		select {
		case <-a.stopCh:
			return
		case <-idleTimer.C:
			// Stop idle actors to avoid leaking goroutines when clients mint
			// many session ids. The buffer stays registered.
			return
		case cmd := <-a.inbox:
			resetIdle()
			reply, err := a.reg.svc.performExchange(cmd.ctx, a.sess, cmd.text)
			cmd.resp <- exchangeResult{reply: reply, err: err}
		}
	}
}
