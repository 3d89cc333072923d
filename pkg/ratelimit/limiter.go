// Package ratelimit throttles inbound events globally and per user.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled bool `json:"enabled" env:"PICOBOT_RATE_LIMITS_ENABLED"`
	// EventsPerMinute is the global budget across all users.
	EventsPerMinute int `json:"events_per_minute" env:"PICOBOT_RATE_LIMITS_EVENTS_PER_MINUTE"`
	// UserEventsPerMinute is the budget of a single user.
	UserEventsPerMinute int `json:"user_events_per_minute" env:"PICOBOT_RATE_LIMITS_USER_EVENTS_PER_MINUTE"`
	// Burst is how many events may arrive back to back.
	Burst int `json:"burst" env:"PICOBOT_RATE_LIMITS_BURST"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		EventsPerMinute:     600,
		UserEventsPerMinute: 30,
		Burst:               5,
	}
}

// Limiter implements token buckets on top of x/time/rate.
type Limiter struct {
	config Config
	global *rate.Limiter
	users  sync.Map // map[string]*rate.Limiter
}

func NewLimiter(config Config) *Limiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	l := &Limiter{config: config}
	if config.Enabled && config.EventsPerMinute > 0 {
		l.global = rate.NewLimiter(perMinute(config.EventsPerMinute), max(config.Burst, config.EventsPerMinute/60))
	}
	return l
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// AllowEvent reports whether an event from userID may be processed now.
// A rejected event consumes nothing from the global budget.
func (l *Limiter) AllowEvent(userID int64) bool {
	if !l.config.Enabled {
		return true
	}
	now := time.Now()

	var user *rate.Limiter
	if l.config.UserEventsPerMinute > 0 {
		user = l.userLimiter(userID)
		if !user.AllowN(now, 1) {
			return false
		}
	}
	if l.global != nil && !l.global.AllowN(now, 1) {
		return false
	}
	return true
}

// WaitEvent blocks until an event from userID may be processed or ctx ends.
func (l *Limiter) WaitEvent(ctx context.Context, userID int64) error {
	if !l.config.Enabled {
		return nil
	}
	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return err
		}
	}
	if l.config.UserEventsPerMinute > 0 {
		return l.userLimiter(userID).Wait(ctx)
	}
	return nil
}

func (l *Limiter) userLimiter(userID int64) *rate.Limiter {
	key := strconv.FormatInt(userID, 10)
	if cached, ok := l.users.Load(key); ok {
		return cached.(*rate.Limiter)
	}
	newL := rate.NewLimiter(perMinute(l.config.UserEventsPerMinute), l.config.Burst)
	actual, _ := l.users.LoadOrStore(key, newL)
	return actual.(*rate.Limiter)
}

// Status returns the current rate limit status for a user.
type Status struct {
	UserID       int64
	UserTokens   float64
	UserLimit    int
	GlobalTokens float64
	GlobalLimit  int
}

func (l *Limiter) GetStatus(userID int64) Status {
	if !l.config.Enabled {
		return Status{UserID: userID}
	}
	st := Status{
		UserID:      userID,
		UserLimit:   l.config.UserEventsPerMinute,
		GlobalLimit: l.config.EventsPerMinute,
	}
	if l.global != nil {
		st.GlobalTokens = l.global.Tokens()
	}
	if cached, ok := l.users.Load(strconv.FormatInt(userID, 10)); ok {
		st.UserTokens = cached.(*rate.Limiter).Tokens()
	}
	return st
}

// Prune forgets per-user limiters that are back to a full bucket.
func (l *Limiter) Prune() int {
	n := 0
	l.users.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.config.Burst) {
			l.users.Delete(key)
			n++
		}
		return true
	})
	return n
}
