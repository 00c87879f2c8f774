package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped
	t.stopped = true
	return active
}

// fakeScheduler records armed expiries so tests can fire them manually.
type fakeScheduler struct {
	timers []*fakeTimer
	fns    []func()
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, f func()) timerHandle {
	timer := &fakeTimer{}
	s.timers = append(s.timers, timer)
	s.fns = append(s.fns, f)
	return timer
}

func (s *fakeScheduler) fire(i int) {
	s.fns[i]()
}

func TestTypingTrackerTouchStartsAndRefreshes(t *testing.T) {
	req := require.New(t)
	sched := &fakeScheduler{}
	tracker := newTypingTracker(2*time.Second, sched)

	req.True(tracker.Touch("c1", "u1"))
	req.False(tracker.Touch("c1", "u1"))
	req.Equal(1, tracker.Active())

	// Refreshing cancels the previous expiry.
	req.True(sched.timers[0].stopped)
	req.False(sched.timers[1].stopped)
}

func TestTypingTrackerExpiryClearsEntry(t *testing.T) {
	req := require.New(t)
	sched := &fakeScheduler{}
	tracker := newTypingTracker(2*time.Second, sched)

	tracker.Touch("c1", "u1")
	sched.fire(0)

	req.Zero(tracker.Active())
	// The next typing event after idle starts a new episode.
	req.True(tracker.Touch("c1", "u1"))
}

func TestTypingTrackerStaleExpiryDoesNotEvictReplacement(t *testing.T) {
	req := require.New(t)
	sched := &fakeScheduler{}
	tracker := newTypingTracker(2*time.Second, sched)

	tracker.Touch("c1", "u1")
	tracker.Touch("c1", "u1")

	// Simulate the first expiry having already fired before the refresh
	// could cancel it: the replacement entry must survive.
	sched.fire(0)
	req.Equal(1, tracker.Active())
}

func TestTypingTrackerStop(t *testing.T) {
	req := require.New(t)
	tracker := newTypingTracker(2*time.Second, &fakeScheduler{})

	tracker.Touch("c1", "u1")
	req.True(tracker.Stop("c1", "u1"))
	req.False(tracker.Stop("c1", "u1"))
	req.Zero(tracker.Active())
}

func TestTypingTrackerStopAllFor(t *testing.T) {
	req := require.New(t)
	tracker := newTypingTracker(2*time.Second, &fakeScheduler{})

	tracker.Touch("c1", "u1")
	tracker.Touch("c2", "u1")
	tracker.Touch("c1", "u2")

	tracker.StopAllFor("u1")
	req.Equal(1, tracker.Active())
	req.True(tracker.Stop("c1", "u2"))
}

func TestTypingTrackerWallClockExpiry(t *testing.T) {
	tracker := newTypingTracker(10*time.Millisecond, nil)

	tracker.Touch("c1", "u1")
	require.Eventually(t, func() bool {
		return tracker.Active() == 0
	}, time.Second, 5*time.Millisecond)
}
