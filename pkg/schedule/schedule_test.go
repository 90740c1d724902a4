package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicFirstFireUsesInitialDelay(t *testing.T) {
	sched := Periodic(5*time.Second, time.Second)
	now := time.Now()
	next := sched.Next(now)
	assert.Equal(t, now.Add(5*time.Second), next)
}

func TestPeriodicSubsequentFiresUsePeriod(t *testing.T) {
	sched := Periodic(5*time.Second, time.Second)
	now := time.Now()
	first := sched.Next(now)
	second := sched.Next(first)
	assert.Equal(t, first.Add(time.Second), second)
}

func TestRunnerInvokesJob(t *testing.T) {
	r := NewRunner()
	var calls int32
	r.Add("test", 10*time.Millisecond, 10*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerRemoveStopsFurtherFires(t *testing.T) {
	r := NewRunner()
	var calls int32
	id := r.Add("test", 5*time.Millisecond, 5*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
	r.Remove(id)
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls))
}
