// ratelimit.go - Token bucket rate limiting of mutating operations, per account.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket implements a simple token bucket rate limiter
type Bucket struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
	lastRefill   time.Time
	now          func() time.Time
}

// NewBucket creates a full bucket that gains refillRate tokens every refillPeriod.
func NewBucket(maxTokens, refillRate int, refillPeriod time.Duration) *Bucket {
	return newBucket(maxTokens, refillRate, refillPeriod, time.Now)
}

func newBucket(maxTokens, refillRate int, refillPeriod time.Duration, now func() time.Time) *Bucket {
	return &Bucket{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		lastRefill:   now(),
		now:          now,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Tokens returns the current number of available tokens
func (b *Bucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// Reset refills the bucket.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.maxTokens
	b.lastRefill = b.now()
}

// refill adds whole periods only; the partial period carries over.
func (b *Bucket) refill() {
	if b.refillPeriod <= 0 {
		return
	}
	periods := int(b.now().Sub(b.lastRefill) / b.refillPeriod)
	if periods <= 0 {
		return
	}
	b.tokens += periods * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * b.refillPeriod)
}

// Limiter keeps one bucket per account.
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*Bucket
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
	now          func() time.Time
}

// New creates a per-account limiter.
func New(maxTokens, refillRate int, refillPeriod time.Duration) *Limiter {
	return &Limiter{
		buckets:      make(map[string]*Bucket),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

// WithClock replaces the clock used by buckets created afterwards.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

func (l *Limiter) bucket(account string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[account]
	if !ok {
		b = newBucket(l.maxTokens, l.refillRate, l.refillPeriod, l.now)
		l.buckets[account] = b
	}
	return b
}

// Allow consumes a token from the account's bucket.
func (l *Limiter) Allow(account string) bool {
	return l.bucket(account).Allow()
}

// Tokens returns the tokens left for an account.
func (l *Limiter) Tokens(account string) int {
	l.mu.Lock()
	b, ok := l.buckets[account]
	l.mu.Unlock()
	if !ok {
		return l.maxTokens
	}
	return b.Tokens()
}

// Reset refills the bucket of one account.
func (l *Limiter) Reset(account string) {
	l.mu.Lock()
	b, ok := l.buckets[account]
	l.mu.Unlock()
	if ok {
		b.Reset()
	}
}

// ResetAll refills every bucket.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.buckets {
		b.Reset()
	}
}
