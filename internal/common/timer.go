// Package common provides shared timing helpers.
package common

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Timer measures consecutive named stages of one unit of work.
type Timer struct {
	start  time.Time
	last   time.Time
	stages map[string]time.Duration
	order  []string
	now    func() time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return newTimerWithClock(time.Now)
}

func newTimerWithClock(now func() time.Time) *Timer {
	t := now()
	return &Timer{start: t, last: t, stages: make(map[string]time.Duration), now: now}
}

// Mark closes the stage that began at the previous mark (or at start) under name and
// returns its duration. Marking the same name again accumulates.
func (t *Timer) Mark(name string) time.Duration {
	n := t.now()
	d := n.Sub(t.last)
	t.last = n
	if _, ok := t.stages[name]; !ok {
		t.order = append(t.order, name)
	}
	t.stages[name] += d
	return d
}

// Stage returns the recorded duration for name.
func (t *Timer) Stage(name string) time.Duration {
	return t.stages[name]
}

// Total returns the time since start.
func (t *Timer) Total() time.Duration {
	return t.now().Sub(t.start)
}

// String lists stages in the order they were first marked.
func (t *Timer) String() string {
	parts := make([]string, 0, len(t.order))
	for _, name := range t.order {
		parts = append(parts, fmt.Sprintf("%s=%v", name, t.stages[name]))
	}
	return strings.Join(parts, " ")
}

// Milliseconds converts d to milliseconds rounded to two decimals.
func Milliseconds(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
