package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestBucketRefillsWholePeriods(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newBucket(2, 1, time.Second, clock.now)

	if !b.Allow() || !b.Allow() {
		t.Fatalf("a full bucket should allow two requests")
	}
	if b.Allow() {
		t.Fatalf("an empty bucket should refuse")
	}

	clock.t = clock.t.Add(1500 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("one period elapsed, expected a token")
	}
	if b.Allow() {
		t.Errorf("only one token should have been added")
	}

	// The half period left over from before counts toward the next refill.
	clock.t = clock.t.Add(500 * time.Millisecond)
	if got := b.Tokens(); got != 1 {
		t.Errorf("tokens = %d, want 1", got)
	}

	clock.t = clock.t.Add(time.Hour)
	if got := b.Tokens(); got != 2 {
		t.Errorf("tokens should cap at 2, got %d", got)
	}
}

func TestLimiterIsPerAccount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(1, 1, time.Minute).WithClock(clock.now)

	if !l.Allow("0xalice") {
		t.Fatalf("first request should pass")
	}
	if l.Allow("0xalice") {
		t.Errorf("second request within the period should be refused")
	}
	if !l.Allow("0xbob") {
		t.Errorf("other accounts have their own bucket")
	}
	if got := l.Tokens("0xcarol"); got != 1 {
		t.Errorf("unknown accounts report a full bucket, got %d", got)
	}

	l.Reset("0xalice")
	if !l.Allow("0xalice") {
		t.Errorf("Reset should refill the bucket")
	}
	l.ResetAll()
	if l.Tokens("0xbob") != 1 {
		t.Errorf("ResetAll should refill every bucket")
	}
}
