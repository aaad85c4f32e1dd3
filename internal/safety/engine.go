package safety

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/notify"
	"github.com/jensenyang2004/Safii-sub000/internal/remote"
	"github.com/jensenyang2004/Safii-sub000/internal/timeline"

	"go.uber.org/zap"
)

var (
	ErrSessionActive   = errors.New("a tracking session is already active")
	ErrNoSession       = errors.New("no active tracking session")
	ErrEmergencyLocked = errors.New("emergency already active, session cannot be reported safe")
)

// RecordRegistry is the device-owned slice of the remote dead-man's-switch
// record: create on start, push activation forward on safety report,
// deactivate on explicit stop.
type RecordRegistry interface {
	Create(ctx context.Context, rec remote.Record) (remote.Record, error)
	RefreshActivation(ctx context.Context, id string, activation time.Time, contactIDs []string) error
	Deactivate(ctx context.Context, id, status string) error
}

// Broadcaster fans session-state transitions out to watching clients.
type Broadcaster interface {
	Broadcast(userID string, payload []byte)
}

// Defaults fill in start parameters the client leaves zero.
type Defaults struct {
	SessionMinutes   int
	ReductionMinutes int
	StrikeThreshold  int
}

// Engine owns all session state and is its only mutator. Notification
// callbacks are hints; every answer it gives comes from comparing the
// stored timeline against the wall clock.
type Engine struct {
	store        *Store
	sched        notify.Scheduler
	records      RecordRegistry
	hub          Broadcaster
	logger       *zap.Logger
	reportWindow time.Duration
	defaults     Defaults
	clock        func() time.Time

	mu      sync.Mutex
	watches map[string]context.CancelFunc
}

func NewEngine(store *Store, sched notify.Scheduler, records RecordRegistry, hub Broadcaster, logger *zap.Logger, reportWindow time.Duration, defaults Defaults) *Engine {
	return &Engine{
		store:        store,
		sched:        sched,
		records:      records,
		hub:          hub,
		logger:       logger,
		reportWindow: reportWindow,
		defaults:     defaults,
		clock:        time.Now,
		watches:      map[string]context.CancelFunc{},
	}
}

func (e *Engine) Defaults() Defaults { return e.defaults }

func (e *Engine) fillDefaults(p StartParams) StartParams {
	if p.SessionMinutes <= 0 {
		p.SessionMinutes = e.defaults.SessionMinutes
	}
	if p.ReductionMinutes <= 0 {
		p.ReductionMinutes = e.defaults.ReductionMinutes
	}
	if p.StrikeThreshold <= 0 {
		p.StrikeThreshold = e.defaults.StrikeThreshold
	}
	return p
}

// Start activates tracking: computes the first epoch's timeline, creates
// the remote record, arms notifications and persists the session.
func (e *Engine) Start(ctx context.Context, userID string, p StartParams) (State, error) {
	if existing, ok, err := e.store.LoadSession(ctx, userID); err == nil && ok && existing.Active {
		return State{}, ErrSessionActive
	}

	p = e.fillDefaults(p)
	now := e.clock()
	events := timeline.Calculate(now,
		time.Duration(p.SessionMinutes)*time.Minute,
		e.reportWindow,
		time.Duration(p.ReductionMinutes)*time.Minute,
		p.StrikeThreshold)
	final := timeline.Final(events)

	rec, err := e.records.Create(ctx, remote.Record{
		TrackedUserID:           userID,
		EmergencyContactIDs:     p.ContactIDs,
		EmergencyActivationTime: final.Time,
	})
	if err != nil {
		return State{}, err
	}

	handles, err := e.sched.ScheduleAll(ctx, userID, events)
	if err != nil {
		e.logger.Error("arming notifications failed", zap.String("user_id", userID), zap.Error(err))
	}

	sess := Session{
		UserID:           userID,
		ModeID:           p.ModeID,
		StartTime:        now,
		SessionMinutes:   p.SessionMinutes,
		ReductionMinutes: p.ReductionMinutes,
		StrikeThreshold:  p.StrikeThreshold,
		Active:           true,
		Timeline:         events,
		Handles:          handles,
		ContactIDs:       p.ContactIDs,
		RecordID:         rec.ID,
	}
	if err := e.store.SaveSession(ctx, sess); err != nil {
		return State{}, err
	}

	state := e.stateFor(sess, now)
	e.broadcast(userID, state)
	e.logger.Info("tracking started",
		zap.String("user_id", userID),
		zap.String("mode", p.ModeID),
		zap.Time("emergency_at", final.Time),
	)
	return state, nil
}

// ReportSafety resets the session to a fresh epoch: cancel the old
// notifications, recompute the timeline from now, zero the strike count
// and push the remote activation time forward.
func (e *Engine) ReportSafety(ctx context.Context, userID string) (State, error) {
	sess, ok, err := e.store.LoadSession(ctx, userID)
	if err != nil {
		return e.failSafe(ctx, userID, err), ErrNoSession
	}
	if !ok || !sess.Active {
		return State{Phase: PhaseIdle}, ErrNoSession
	}

	now := e.clock()
	if timeline.Expired(sess.Timeline, now) {
		return e.stateFor(sess, now), ErrEmergencyLocked
	}

	// Old epoch's notifications must be gone before the new epoch arms.
	if err := e.sched.CancelAll(ctx, userID, sess.Handles); err != nil {
		e.logger.Error("cancelling notifications failed", zap.String("user_id", userID), zap.Error(err))
	}

	events := timeline.Calculate(now,
		time.Duration(sess.SessionMinutes)*time.Minute,
		e.reportWindow,
		time.Duration(sess.ReductionMinutes)*time.Minute,
		sess.StrikeThreshold)
	final := timeline.Final(events)

	handles, err := e.sched.ScheduleAll(ctx, userID, events)
	if err != nil {
		e.logger.Error("arming notifications failed", zap.String("user_id", userID), zap.Error(err))
	}

	// A failed refresh leaves the earlier activation time in place, which
	// escalates sooner than intended rather than never.
	if err := e.records.RefreshActivation(ctx, sess.RecordID, final.Time, sess.ContactIDs); err != nil {
		e.logger.Error("refreshing remote record failed", zap.String("user_id", userID), zap.Error(err))
	}

	sess.StartTime = now
	sess.StrikeCount = 0
	sess.Timeline = events
	sess.Handles = handles
	sess.ReportDeadline = nil
	if err := e.store.SaveSession(ctx, sess); err != nil {
		return State{}, err
	}

	state := e.stateFor(sess, now)
	e.broadcast(userID, state)
	e.logger.Info("safety reported", zap.String("user_id", userID), zap.Time("emergency_at", final.Time))
	return state, nil
}

// Stop ends tracking. A user or sign-out stop deactivates the remote
// record and clears everything local. An emergency stop only clears the
// notification bookkeeping: the remote record and the session stay live so
// the user cannot silently cancel an in-progress emergency.
func (e *Engine) Stop(ctx context.Context, userID string, reason StopReason) error {
	e.stopWatch(userID)

	sess, ok, err := e.store.LoadSession(ctx, userID)
	if err != nil {
		e.logger.Warn("session unreadable on stop, clearing", zap.String("user_id", userID), zap.Error(err))
		return e.store.Clear(ctx, userID)
	}
	if !ok {
		return nil
	}

	if err := e.sched.CancelAll(ctx, userID, sess.Handles); err != nil {
		e.logger.Error("cancelling notifications failed", zap.String("user_id", userID), zap.Error(err))
	}

	switch reason {
	case StopEmergency:
		if err := e.store.ClearNotificationState(ctx, userID); err != nil {
			return err
		}
		e.broadcast(userID, State{Phase: PhaseEmergencyActive, StrikeCount: sess.StrikeThreshold, StrikeThreshold: sess.StrikeThreshold})
		e.logger.Warn("emergency active, remote record left running", zap.String("user_id", userID))
		return nil
	case StopSignOut:
		if sess.RecordID != "" {
			if err := e.records.Deactivate(ctx, sess.RecordID, remote.StatusCancelledBySignOut); err != nil {
				e.logger.Error("deactivating remote record failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	default:
		if sess.RecordID != "" {
			if err := e.records.Deactivate(ctx, sess.RecordID, ""); err != nil {
				e.logger.Error("deactivating remote record failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	if err := e.store.Clear(ctx, userID); err != nil {
		return err
	}
	e.broadcast(userID, State{Phase: PhaseIdle})
	e.logger.Info("tracking stopped", zap.String("user_id", userID), zap.String("reason", string(reason)))
	return nil
}

// Reconcile recomputes where the session stands from the stored timeline
// and the wall clock. Idempotent; safe to call on every resume, tick or
// notification hint. It never assumes any callback actually ran.
func (e *Engine) Reconcile(ctx context.Context, userID string) (State, error) {
	sess, ok, err := e.store.LoadSession(ctx, userID)
	if err != nil {
		return e.failSafe(ctx, userID, err), nil
	}
	if !ok || !sess.Active {
		return State{Phase: PhaseIdle}, nil
	}

	now := e.clock()
	state := e.stateFor(sess, now)

	// Bookkeeping only. The stored strike count is never trusted; it is
	// rewritten here so late-firing consumers read a consistent value.
	if sess.StrikeCount != state.StrikeCount {
		if err := e.store.SetStrike(ctx, userID, state.StrikeCount); err != nil {
			e.logger.Error("persisting strike count failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	storedDeadline := sess.ReportDeadline
	if !equalTimePtr(storedDeadline, state.ReportDeadline) {
		if err := e.store.SetReportDeadline(ctx, userID, state.ReportDeadline); err != nil {
			e.logger.Error("persisting report deadline failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return state, nil
}

// HandleNotification treats a fired notification as a hint that state may
// have moved and reconciles. Delivery order and cardinality are untrusted.
func (e *Engine) HandleNotification(ctx context.Context, userID string, p notify.Payload) (State, error) {
	e.logger.Debug("notification hint",
		zap.String("user_id", userID),
		zap.String("type", string(p.Type)),
		zap.Int("strike", p.Strike),
	)
	state, err := e.Reconcile(ctx, userID)
	if err == nil {
		e.broadcast(userID, state)
	}
	return state, err
}

// Watch polls the wall clock every interval while a session is live,
// broadcasting phase changes so watching clients see deadline crossings
// before any notification fires. Returns a stop func.
func (e *Engine) Watch(ctx context.Context, userID string, interval time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if old, ok := e.watches[userID]; ok {
		old()
	}
	e.watches[userID] = cancel
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := Phase("")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state, err := e.Reconcile(ctx, userID)
				if err != nil {
					continue
				}
				if state.Phase != last {
					last = state.Phase
					e.broadcast(userID, state)
				}
				if state.Phase == PhaseIdle {
					e.stopWatch(userID)
					return
				}
			}
		}
	}()
	return cancel
}

func (e *Engine) stopWatch(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.watches[userID]; ok {
		cancel()
		delete(e.watches, userID)
	}
}

// stateFor is the pure reconciliation core: stored timeline plus now.
func (e *Engine) stateFor(sess Session, now time.Time) State {
	state := State{
		StrikeThreshold: sess.StrikeThreshold,
		Timeline:        sess.Timeline,
	}
	if final := timeline.Final(sess.Timeline); final != nil {
		t := final.Time
		state.EmergencyAt = &t
	}

	if timeline.Expired(sess.Timeline, now) {
		state.Phase = PhaseEmergencyActive
		state.StrikeCount = sess.StrikeThreshold
		return state
	}

	state.StrikeCount = timeline.StrikesBefore(sess.Timeline, now)

	if win := timeline.OpenWindow(sess.Timeline, now); win != nil {
		state.Phase = PhaseReportDue
		state.ReportDeadline = win.Deadline
		if next := timeline.NextSessionEnd(sess.Timeline, now); next != nil {
			t := next.Time
			state.NextCheckIn = &t
		}
		return state
	}

	state.Phase = PhaseTracking
	if next := timeline.NextSessionEnd(sess.Timeline, now); next != nil {
		t := next.Time
		state.NextCheckIn = &t
	}
	return state
}

// failSafe handles unreadable local state: log, clear, report idle. A
// phantom active session is worse than a clean stop.
func (e *Engine) failSafe(ctx context.Context, userID string, cause error) State {
	e.logger.Error("session state unreadable, failing safe to idle",
		zap.String("user_id", userID), zap.Error(cause))
	if err := e.store.Clear(ctx, userID); err != nil {
		e.logger.Error("clearing broken session failed", zap.String("user_id", userID), zap.Error(err))
	}
	return State{Phase: PhaseIdle}
}

func (e *Engine) broadcast(userID string, state State) {
	if e.hub == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	e.hub.Broadcast(userID, payload)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
