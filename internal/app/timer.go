package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chypac/olimpiafa/internal/domain"
)

// TimerEngine owns one countdown per question. Only the active question's
// counter ticks; switching questions pauses the old counter at its last
// value and resumes the new one from its stored value. Counters never go
// negative, and expiry fires exactly once per question.
//
// Callbacks are invoked outside the engine's lock, from the tick goroutine.
type TimerEngine struct {
	clock    clockwork.Clock
	onTick   func(questionID string, remaining int)
	onExpire func(questionID string)

	mu        sync.Mutex
	remaining map[string]int
	expired   map[string]bool
	active    string
	cancel    chan struct{}
}

func NewTimerEngine(clock clockwork.Clock, onTick func(string, int), onExpire func(string)) *TimerEngine {
	return &TimerEngine{
		clock:     clock,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: make(map[string]int),
		expired:   make(map[string]bool),
	}
}

// Init seeds every counter from its question's time limit.
func (e *TimerEngine) Init(questions []domain.Question) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range questions {
		limit := q.TimeLimit
		if limit < 0 {
			limit = 0
		}
		e.remaining[q.ID] = limit
	}
}

// Restore resumes counters from persisted remaining values. Unknown keys
// are ignored; negative values clamp to zero. Expiry state is not restored,
// so a counter restored at zero fires its expiry once it becomes active.
func (e *TimerEngine) Restore(timers map[string]int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, left := range timers {
		if _, ok := e.remaining[id]; !ok {
			continue
		}
		if left < 0 {
			left = 0
		}
		e.remaining[id] = left
	}
}

// Activate makes questionID the ticking counter, pausing any previous one.
// A counter already at zero fires its expiry immediately (once); a counter
// whose expiry already fired stays idle.
func (e *TimerEngine) Activate(questionID string) {
	e.mu.Lock()
	e.stopLocked()
	e.active = questionID

	left, ok := e.remaining[questionID]
	if !ok {
		// A missing counter must not break the loop: treat it as out of time.
		e.remaining[questionID] = 0
		left = 0
	}
	if left <= 0 {
		fire := !e.expired[questionID]
		e.expired[questionID] = true
		e.mu.Unlock()
		if fire {
			go e.onExpire(questionID)
		}
		return
	}

	cancel := make(chan struct{})
	e.cancel = cancel
	e.mu.Unlock()
	go e.run(questionID, cancel)
}

// Deactivate pauses the active counter at its current value.
func (e *TimerEngine) Deactivate() {
	e.mu.Lock()
	e.stopLocked()
	e.active = ""
	e.mu.Unlock()
}

// Remaining returns a copy of every counter.
func (e *TimerEngine) Remaining() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.remaining))
	for id, left := range e.remaining {
		out[id] = left
	}
	return out
}

// RemainingFor returns the counter for a single question.
func (e *TimerEngine) RemainingFor(questionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining[questionID]
}

func (e *TimerEngine) run(questionID string, cancel chan struct{}) {
	for {
		timer := e.clock.NewTimer(time.Second)
		select {
		case <-timer.Chan():
			left, fire, live := e.tick(questionID, cancel)
			if !live {
				return
			}
			e.onTick(questionID, left)
			if fire {
				e.onExpire(questionID)
				return
			}
		case <-cancel:
			stopAndDrainTimer(timer)
			return
		}
	}
}

// tick decrements the counter by exactly one second. It reports the new
// value, whether expiry fired on this tick, and whether the loop is still
// the live one for this question.
func (e *TimerEngine) tick(questionID string, cancel chan struct{}) (left int, fire, live bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != cancel || e.active != questionID {
		return 0, false, false
	}
	left = e.remaining[questionID]
	if left > 0 {
		left--
		e.remaining[questionID] = left
	}
	if left == 0 {
		if e.expired[questionID] {
			return 0, false, false
		}
		e.expired[questionID] = true
		e.cancel = nil
		return 0, true, true
	}
	return left, false, true
}

func (e *TimerEngine) stopLocked() {
	if e.cancel != nil {
		close(e.cancel)
		e.cancel = nil
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel so a fired
// tick is never delivered after cancellation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
