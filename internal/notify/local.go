package notify

import (
	"context"
	"sync"
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/timeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalScheduler arms wall-clock timers in process. Firing is a hint only:
// consumers reconcile against the stored timeline and never count on a
// timer having run.
type LocalScheduler struct {
	logger *zap.Logger
	clock  func() time.Time

	mu     sync.Mutex
	timers map[Handle]*time.Timer
	onFire func(userID string, p Payload)
}

func NewLocalScheduler(logger *zap.Logger) *LocalScheduler {
	return &LocalScheduler{
		logger: logger,
		clock:  time.Now,
		timers: map[Handle]*time.Timer{},
	}
}

// SetOnFire registers the delivery callback. Must be called before the
// first ScheduleAll.
func (s *LocalScheduler) SetOnFire(fn func(userID string, p Payload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
}

func (s *LocalScheduler) ScheduleAll(ctx context.Context, userID string, events []timeline.Event) ([]Handle, error) {
	now := s.clock()

	var handles []Handle
	for _, e := range events {
		if !e.Time.After(now) {
			continue
		}

		handle := Handle(uuid.NewString())
		payload := PayloadFor(e)

		s.mu.Lock()
		s.timers[handle] = time.AfterFunc(e.Time.Sub(now), func() {
			s.fire(handle, userID, payload)
		})
		s.mu.Unlock()

		handles = append(handles, handle)
		s.logger.Debug("notification armed",
			zap.String("user_id", userID),
			zap.String("type", string(e.Type)),
			zap.Time("at", e.Time),
		)
	}
	return handles, nil
}

func (s *LocalScheduler) CancelAll(ctx context.Context, userID string, handles []Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range handles {
		if timer, ok := s.timers[h]; ok {
			timer.Stop()
			delete(s.timers, h)
		}
	}
	return nil
}

func (s *LocalScheduler) fire(handle Handle, userID string, p Payload) {
	s.mu.Lock()
	delete(s.timers, handle)
	fn := s.onFire
	s.mu.Unlock()

	if fn != nil {
		fn(userID, p)
	}
}

// Pending reports how many notifications are currently armed.
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
