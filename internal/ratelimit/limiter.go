// Package ratelimit provides Redis-backed throttling for the dispatcher
// using the INCR + EXPIRE fixed-window algorithm. Limiting is a courtesy
// control, not a security boundary: on any Redis error the limiter fails
// open so an outage never blocks legitimate chatting.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines one throttling policy: key prefix, allowance, and window.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Standard rules for the chat dispatcher.
var (
	// RuleRelay allows 20 relayed messages per 10 seconds per user.
	RuleRelay = Rule{Key: "rl:relay:", Limit: 20, Window: 10 * time.Second}

	// RuleFind allows 10 find-partner attempts per minute per user.
	RuleFind = Rule{Key: "rl:find:", Limit: 10, Window: time.Minute}

	// RuleReport allows 5 reports per minute per user, so report spam can't
	// rack up bans faster than conversations end.
	RuleReport = Rule{Key: "rl:report:", Limit: 5, Window: time.Minute}
)

// Limiter performs rate checks against Redis. A nil *Limiter is valid and
// allows everything, which is how deployments without Redis run.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow reports whether the identifier is within the rule's budget, counting
// this call. The window starts at the first hit.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] incr %s: %v (failing open)", key, err)
		return true
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] expire %s: %v (failing open)", key, err)
			// The counter has no TTL and would throttle forever; best effort
			// removal before letting the request through.
			l.client.Del(ctx, key)
			return true
		}
	}

	return int(count) <= rule.Limit
}

// Remaining returns the identifier's unused budget in the current window.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) int {
	if l == nil || l.client == nil {
		return rule.Limit
	}
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit
	}
	if err != nil {
		log.Printf("[ratelimit] get %s: %v (failing open)", key, err)
		return rule.Limit
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
