package authstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/events"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/metrics"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("auth provider already started")

const (
	// DefaultRevalidateInterval is how often an authenticated session is re-checked.
	DefaultRevalidateInterval = time.Minute

	touchGranularity = 10 * time.Second
	revokeTimeout    = 5 * time.Second
	sourceName       = "authstate"
)

// Logout causes, used for metrics and the LoggedOut event reason.
const (
	CauseUser         = "user"
	CauseUnauthorized = "unauthorized"
	CauseExpired      = "expired"
	CauseRevalidation = "revalidation"
	CauseRestore      = "restore"
)

// Options tunes a Provider. Zero values pick defaults.
type Options struct {
	RevalidateInterval time.Duration
	Revoker            authclient.Revoker
	Metrics            *metrics.Auth
	Logger             *slog.Logger
}

// Provider owns the process-wide auth state. It is the only writer of the
// session store.
//
// Every operation that suspends on the network captures a generation number
// before it starts. Logout and every new Login bump the generation, and a
// result carrying a stale generation is dropped, so an in-flight login or
// re-validation can never resurrect a state that a later call replaced.
type Provider struct {
	store     session.Store
	auth      authclient.Authenticator
	validator *authclient.Validator
	bus       *events.Bus
	opts      Options
	log       *slog.Logger

	mu        sync.Mutex
	status    Status
	current   *session.Session
	notice    string
	gen       uint64
	ready     chan struct{}
	settled   bool
	started   bool
	listeners map[int]func(AuthState)
	nextID    int

	cancel context.CancelFunc
	done   chan struct{}
	unsubs []func()
}

// New builds a provider in the Uninitialized state.
func New(store session.Store, auth authclient.Authenticator, validator *authclient.Validator, bus *events.Bus, opts Options) *Provider {
	if opts.RevalidateInterval <= 0 {
		opts.RevalidateInterval = DefaultRevalidateInterval
	}
	log := opts.Logger
	if log == nil {
		log = logger.With("auth_provider")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Provider{
		store:     store,
		auth:      auth,
		validator: validator,
		bus:       bus,
		opts:      opts,
		log:       log,
		status:    StatusUninitialized,
		ready:     make(chan struct{}),
		listeners: make(map[int]func(AuthState)),
	}
}

// Bus returns the event bus the provider listens on.
func (p *Provider) Bus() *events.Bus {
	return p.bus
}

// Start subscribes to forced-logout signals, restores the persisted session
// exactly once and then re-validates it periodically until Close or until ctx
// is cancelled. Restoration runs on the caller's goroutine.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	restore := p.status == StatusUninitialized
	if restore {
		p.status = StatusRestoring
	}
	gen := p.gen
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	unsubs := []func(){
		p.bus.Subscribe(events.Unauthorized, func(e events.Event) {
			p.forceLogout(CauseUnauthorized, authclient.ReasonUnauthorized, e.Reason)
		}),
		p.bus.Subscribe(events.SessionExpired, func(e events.Event) {
			p.forceLogout(CauseExpired, authclient.ReasonSessionExpired, e.Reason)
		}),
	}
	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsubs...)
	p.mu.Unlock()

	if restore {
		p.notify()
		p.restore(ctx, gen)
	}

	go p.loop(loopCtx)
	return nil
}

// Close stops periodic re-validation and detaches from the event bus.
// The persisted session is left untouched.
func (p *Provider) Close() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// State returns a snapshot of the current auth state.
func (p *Provider) State() AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Provider) stateLocked() AuthState {
	st := AuthState{
		Status:  p.status,
		Loading: p.status == StatusRestoring,
		Notice:  p.notice,
	}
	if p.status == StatusAuthenticated && p.current != nil {
		st.IsAuthenticated = true
		st.User = p.current.User()
	}
	return st
}

// Wait blocks until the initial restore has settled or ctx is done.
func (p *Provider) Wait(ctx context.Context) error {
	p.mu.Lock()
	ch := p.ready
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnChange registers fn to receive every state transition. It returns a
// function that removes the listener.
func (p *Provider) OnChange(fn func(AuthState)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Token returns the bearer token of the authenticated session.
func (p *Provider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusAuthenticated || p.current == nil {
		return "", false
	}
	return p.current.Token, true
}

// Login exchanges credentials for a session. Failures are reported in the
// Outcome; Login never panics or returns an error across this boundary.
func (p *Provider) Login(ctx context.Context, creds authclient.Credentials) (out Outcome) {
	defer func() { p.countLogin(out) }()

	if p.restoring() {
		if err := p.Wait(ctx); err != nil {
			return failure(authclient.Classify(err))
		}
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	s, err := p.authenticate(ctx, creds)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.log.Debug("discarding superseded login result")
		return failure(authclient.ReasonSuperseded)
	}
	if err != nil {
		p.mu.Unlock()
		reason := authclient.Classify(err)
		p.log.Info("login failed", "reason", reason)
		return failure(reason)
	}
	if !s.Complete() {
		p.mu.Unlock()
		p.log.Error("authenticator returned an incomplete session", "strategy", p.auth.Name())
		return failure(authclient.ReasonInternal)
	}
	if err := p.store.Save(ctx, s); err != nil {
		p.mu.Unlock()
		if errors.Is(err, session.ErrExpired) {
			p.log.Info("login returned an already expired session", "strategy", p.auth.Name())
			return failure(authclient.ReasonSessionExpired)
		}
		p.log.Error("failed to persist session", "error", err)
		return failure(authclient.ReasonInternal)
	}
	p.current = s.Clone()
	p.status = StatusAuthenticated
	p.notice = ""
	p.settleLocked()
	p.mu.Unlock()

	p.log.Info("login succeeded", "user_id", s.Identity.UserID, "strategy", s.Provider)
	p.notify()
	return Outcome{Success: true}
}

// authenticate shields Login from a misbehaving strategy.
func (p *Provider) authenticate(ctx context.Context, creds authclient.Credentials) (s *session.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("authenticator panicked", "strategy", p.auth.Name(), "panic", r)
			s, err = nil, fmt.Errorf("authenticator %s panicked", p.auth.Name())
		}
	}()
	return p.auth.Authenticate(ctx, creds)
}

// Logout clears the persisted session and moves to Unauthenticated. It is
// idempotent, and it always wins over any login or validation still in flight.
func (p *Provider) Logout(ctx context.Context) {
	token, ended := p.endSession(ctx, ending{cause: CauseUser})
	if ended && token != "" && p.opts.Revoker != nil {
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
		defer cancel()
		if err := p.opts.Revoker.Revoke(revokeCtx, token); err != nil {
			p.log.Warn("failed to revoke token on logout", "error", err)
		}
	}
}

// forceLogout is the single logout path for system-triggered logouts.
func (p *Provider) forceLogout(cause string, reason authclient.Reason, detail string) {
	if detail != "" {
		p.log.Info("forced logout", "cause", cause, "detail", detail)
	}
	e := ending{cause: cause, notice: reason.Message()}
	if detail == events.ReasonRemoteLogout {
		e.eventReason = events.ReasonRemoteLogout
	}
	p.endSession(context.Background(), e)
}

// ending describes one transition to Unauthenticated.
type ending struct {
	cause  string
	notice string
	// eventReason overrides the LoggedOut event reason; defaults to cause.
	eventReason string
	// When checkGen is set the transition only happens if the generation
	// still equals expect.
	expect   uint64
	checkGen bool
}

// endSession performs the transition to Unauthenticated under the lock. It
// returns the token of the ended session and whether an authenticated
// session actually ended.
func (p *Provider) endSession(ctx context.Context, e ending) (string, bool) {
	p.mu.Lock()
	if e.checkGen && p.gen != e.expect {
		p.mu.Unlock()
		return "", false
	}
	p.gen++

	if err := p.store.Clear(ctx); err != nil {
		p.log.Error("failed to clear persisted session", "error", err)
	}

	prev := p.status
	var token string
	if p.current != nil {
		token = p.current.Token
	}
	ended := prev == StatusAuthenticated
	p.current = nil
	p.status = StatusUnauthenticated
	if ended || prev == StatusRestoring {
		p.notice = e.notice
	}
	p.settleLocked()
	p.mu.Unlock()

	if prev != StatusUnauthenticated {
		p.notify()
	}
	if ended {
		p.log.Info("logged out", "cause", e.cause)
		if p.opts.Metrics != nil {
			p.opts.Metrics.Logouts.WithLabelValues(e.cause).Inc()
		}
		reason := e.eventReason
		if reason == "" {
			reason = e.cause
		}
		p.bus.Publish(events.Event{Signal: events.LoggedOut, Source: sourceName, Reason: reason})
	}
	return token, ended
}

// Touch records user activity on the authenticated session. A session that
// is already past its idle window is logged out instead of being revived.
func (p *Provider) Touch(ctx context.Context) {
	p.mu.Lock()
	if p.status != StatusAuthenticated || p.current == nil {
		p.mu.Unlock()
		return
	}
	if err := p.validator.CheckLocal(p.current); err != nil {
		gen := p.gen
		p.mu.Unlock()
		p.endSession(ctx, ending{cause: CauseExpired, notice: authclient.Classify(err).Message(), expect: gen, checkGen: true})
		return
	}

	refreshed := p.validator.RefreshActivity(p.current)
	if refreshed.LastActivity.Sub(p.current.LastActivity) < touchGranularity {
		p.mu.Unlock()
		return
	}
	if err := p.store.Save(ctx, refreshed); err != nil {
		p.log.Warn("failed to persist activity", "error", err)
	} else {
		p.current = refreshed
	}
	p.mu.Unlock()
}

// Revalidate re-checks the authenticated session against the store, the
// lifetime policy and the identity backend, and logs out on any failure.
func (p *Provider) Revalidate(ctx context.Context) {
	p.mu.Lock()
	if p.status != StatusAuthenticated {
		p.mu.Unlock()
		return
	}
	gen := p.gen
	p.mu.Unlock()

	s, err := p.store.Load(ctx)
	if err == nil && s == nil {
		err = authclient.ErrSessionExpired
	}
	if err == nil {
		err = p.validator.Check(ctx, s)
	}
	if ctx.Err() != nil {
		p.log.Debug("periodic validation interrupted", "error", err)
		return
	}
	p.countValidation(err)

	if err != nil {
		reason := authclient.Classify(err)
		p.log.Info("periodic validation failed", "reason", reason)
		p.endSession(ctx, ending{cause: CauseRevalidation, notice: reason.Message(), expect: gen, checkGen: true})
		return
	}

	p.mu.Lock()
	if gen != p.gen || p.status != StatusAuthenticated {
		p.mu.Unlock()
		return
	}
	changed := p.current == nil || p.current.Identity != s.Identity
	p.current = s
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

func (p *Provider) restore(ctx context.Context, gen uint64) {
	s, err := p.store.Load(ctx)
	if ctx.Err() != nil {
		p.log.Debug("session restore interrupted", "error", ctx.Err())
		p.settleRestore(ctx, gen, nil, "", false)
		return
	}
	if err != nil {
		p.log.Error("failed to read persisted session", "error", err)
		p.settleRestore(ctx, gen, nil, "", true)
		return
	}
	if s == nil {
		p.log.Debug("no persisted session")
		p.settleRestore(ctx, gen, nil, "", true)
		return
	}

	err = p.validator.Check(ctx, s)
	if ctx.Err() != nil {
		// The saved session stays for the next process to validate.
		p.log.Debug("session restore interrupted", "error", err)
		p.settleRestore(ctx, gen, nil, "", false)
		return
	}
	p.countValidation(err)
	if err != nil {
		reason := authclient.Classify(err)
		p.log.Info("persisted session rejected", "reason", reason)
		notice := ""
		if reason != authclient.ReasonMalformedSession {
			notice = reason.Message()
		}
		p.settleRestore(ctx, gen, nil, notice, true)
		return
	}
	p.settleRestore(ctx, gen, s, "", false)
}

// settleRestore ends the restore phase. discard removes the persisted record
// when no session was accepted.
func (p *Provider) settleRestore(ctx context.Context, gen uint64, s *session.Session, notice string, discard bool) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	if s == nil {
		if discard {
			if err := p.store.Clear(ctx); err != nil {
				p.log.Error("failed to clear rejected session", "error", err)
			}
		}
		p.status = StatusUnauthenticated
		p.notice = notice
		if p.opts.Metrics != nil && notice != "" {
			p.opts.Metrics.Logouts.WithLabelValues(CauseRestore).Inc()
		}
	} else {
		p.current = s
		p.status = StatusAuthenticated
	}
	p.settleLocked()
	p.mu.Unlock()

	p.notify()
}

func (p *Provider) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.RevalidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Revalidate(ctx)
		}
	}
}

func (p *Provider) restoring() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == StatusRestoring
}

// settleLocked releases Wait callers once the restore phase is over.
func (p *Provider) settleLocked() {
	if !p.settled {
		p.settled = true
		close(p.ready)
	}
}

func (p *Provider) notify() {
	p.mu.Lock()
	st := p.stateLocked()
	fns := make([]func(AuthState), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (p *Provider) countLogin(out Outcome) {
	if p.opts.Metrics == nil {
		return
	}
	label := "success"
	if !out.Success {
		label = string(out.Reason)
	}
	p.opts.Metrics.Logins.WithLabelValues(label).Inc()
}

func (p *Provider) countValidation(err error) {
	if p.opts.Metrics == nil {
		return
	}
	label := "valid"
	if err != nil {
		label = string(authclient.Classify(err))
	}
	p.opts.Metrics.Validations.WithLabelValues(label).Inc()
}
