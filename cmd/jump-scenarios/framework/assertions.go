package framework

import (
	"fmt"
	"sync"
	"time"

	"github.com/BYTE-6D65/jumpclock/pkg/clock"
)

// AssertTrue checks if condition is true.
func AssertTrue(tc *BaseTestCase, name string, condition bool, message string) {
	tc.Assert(name, true, condition, condition, message)
}

// AssertFalse checks if condition is false.
func AssertFalse(tc *BaseTestCase, name string, condition bool, message string) {
	tc.Assert(name, false, condition, !condition, message)
}

// AssertEquals checks if two values are equal.
func AssertEquals(tc *BaseTestCase, name string, expected, actual any) {
	passed := expected == actual
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected %v, got %v", expected, actual)
	}
	tc.Assert(name, expected, actual, passed, message)
}

// AssertCountEquals checks if count matches expected.
func AssertCountEquals(tc *BaseTestCase, name string, expected, actual int) {
	passed := expected == actual
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected %d, got %d", expected, actual)
	}
	tc.Assert(name, expected, actual, passed, message)
}

// AssertDurationEquals checks a jump delta exactly.
func AssertDurationEquals(tc *BaseTestCase, name string, expected, actual time.Duration) {
	passed := expected == actual
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected %s, got %s", expected, actual)
	}
	tc.Assert(name, expected.String(), actual.String(), passed, message)
}

// AssertDurationInRange checks if duration is within range.
func AssertDurationInRange(tc *BaseTestCase, name string, min, max, actual time.Duration) {
	passed := actual >= min && actual <= max
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected duration in [%s, %s], got %s", min, max, actual)
	}
	tc.Assert(name, fmt.Sprintf("[%s, %s]", min, max), actual.String(), passed, message)
}

// AssertNoError records err as a failed assertion when non-nil.
func AssertNoError(tc *BaseTestCase, name string, err error) {
	message := ""
	actual := "<nil>"
	if err != nil {
		message = err.Error()
		actual = message
	}
	tc.Assert(name, "<nil>", actual, err == nil, message)
}

// JumpRecorder collects callback invocations for one handler.
type JumpRecorder struct {
	mu    sync.Mutex
	pre   int
	posts []clock.TimeJump
}

// Pre is a clock.PreJumpCallback.
func (r *JumpRecorder) Pre() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pre++
}

// Post is a clock.PostJumpCallback.
func (r *JumpRecorder) Post(jump clock.TimeJump) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, jump)
}

// Counts returns the pre and post invocation counts.
func (r *JumpRecorder) Counts() (pre, post int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pre, len(r.posts)
}

// LastPost returns the most recent post jump, if any.
func (r *JumpRecorder) LastPost() (clock.TimeJump, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.posts) == 0 {
		return clock.TimeJump{}, false
	}
	return r.posts[len(r.posts)-1], true
}

// WaitForPosts polls until at least n post callbacks arrived or timeout.
func (r *JumpRecorder) WaitForPosts(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if _, post := r.Counts(); post >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
