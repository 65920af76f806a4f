// Package match implements the matching coordinator: it atomically pairs
// waiting users, owns the symmetric session table, and records last-partner
// back-references for the report flow. All pairing state is guarded by one
// global matching mutex. Callers must perform notification I/O after the
// coordinator returns, never inside it.
package match

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pairline/pairline/internal/directory"
	"github.com/pairline/pairline/internal/queue"
)

// Outcome is the result kind of a TryMatch call.
type Outcome int

const (
	// Waiting means no compatible partner was available; the user is queued.
	Waiting Outcome = iota
	// Paired means a session was committed with PartnerID.
	Paired
	// AlreadyPaired means the user already has an active session; no state
	// was changed.
	AlreadyPaired
)

// Result describes the outcome of a matching attempt.
type Result struct {
	Outcome   Outcome
	PartnerID string // set for Paired and AlreadyPaired
	ChatID    string // set for Paired and AlreadyPaired
}

// SkipResult describes a completed skip: the torn-down session (if any) and
// the skipper's re-entry into matching.
type SkipResult struct {
	FormerPartner string  // "" if the user had no session to end
	FormerChatID  string
	Rematch       Result  // the skipper's new matching state
	PartnerResult *Result // set when policy re-queues the skipped partner
}

// Config holds the coordinator's policy knobs.
type Config struct {
	// Policy selects the waitlist partitioning (opposite-gender buckets or a
	// single pool).
	Policy queue.BucketPolicy
	// RequeueSkipped also re-enters the skipped partner into matching when
	// their counterpart skips. Off by default: only the skipper re-queues.
	RequeueSkipped bool
}

// Coordinator owns the waitlist, the session table, and the last-partner map.
type Coordinator struct {
	mu sync.Mutex

	wait        *queue.Waitlist
	active      map[string]string // symmetric: active[a]=b <=> active[b]=a
	chats       map[string]string // user ID -> chat ID of the active session
	lastPartner map[string]string // user ID -> most recent former partner
	lastChat    map[string]string // user ID -> chat ID of that former session

	dir *directory.Store
	cfg Config
}

// NewCoordinator creates a coordinator with empty state.
func NewCoordinator(dir *directory.Store, cfg Config) *Coordinator {
	if cfg.Policy == nil {
		cfg.Policy = queue.OppositeGender{}
	}
	return &Coordinator{
		wait:        queue.New(),
		active:      make(map[string]string),
		chats:       make(map[string]string),
		lastPartner: make(map[string]string),
		lastChat:    make(map[string]string),
		dir:         dir,
		cfg:         cfg,
	}
}

// TryMatch attempts to pair userID with a queued compatible user. If none is
// available the user is enqueued. The whole decision runs under the matching
// lock so two concurrent callers can never dequeue the same partner or
// double-book a user.
func (c *Coordinator) TryMatch(userID string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryMatchLocked(userID)
}

// tryMatchLocked is TryMatch's body; the caller must hold c.mu. The avoid
// list excludes candidates beyond the requester itself.
func (c *Coordinator) tryMatchLocked(userID string, avoid ...string) (Result, error) {
	if partner, ok := c.active[userID]; ok {
		return Result{Outcome: AlreadyPaired, PartnerID: partner, ChatID: c.chats[userID]}, nil
	}

	u, ok := c.dir.Get(userID)
	if !ok {
		return Result{}, fmt.Errorf("match: unknown user %q", userID)
	}

	exclude := append([]string{userID}, avoid...)
	for {
		candidate, found := c.wait.Pop(c.cfg.Policy.SeekBucket(u), exclude...)
		if !found {
			break
		}
		// Defensive re-checks. The waitlist already filters the requester,
		// and the queue-xor-session invariant keeps paired users out of the
		// buckets, but a corrupt restored snapshot must not produce a
		// degenerate session.
		if candidate == userID {
			continue
		}
		if _, paired := c.active[candidate]; paired {
			continue
		}
		// The requester may themselves be waiting (re-issued find, or a
		// skip that re-queued both sides); their entry must not outlive
		// the pairing or the queue-xor-session invariant breaks.
		c.wait.Remove(userID)
		return c.commitLocked(userID, candidate), nil
	}

	c.wait.Enqueue(userID, c.cfg.Policy.WaitBucket(u))
	return Result{Outcome: Waiting}, nil
}

// commitLocked installs the symmetric session entries for a new pairing.
func (c *Coordinator) commitLocked(a, b string) Result {
	chatID := uuid.New().String()
	c.active[a] = b
	c.active[b] = a
	c.chats[a] = chatID
	c.chats[b] = chatID
	return Result{Outcome: Paired, PartnerID: b, ChatID: chatID}
}

// EndSession atomically removes both directions of the user's session and
// records the last-partner back-references used by the report flow. It
// returns the former partner and chat ID, or ok=false if the user had no
// session (a no-op, not an error).
func (c *Coordinator) EndSession(userID string) (partnerID, chatID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endSessionLocked(userID)
}

func (c *Coordinator) endSessionLocked(userID string) (string, string, bool) {
	partner, ok := c.active[userID]
	if !ok {
		return "", "", false
	}
	chatID := c.chats[userID]

	delete(c.active, userID)
	delete(c.active, partner)
	delete(c.chats, userID)
	delete(c.chats, partner)

	c.lastPartner[userID] = partner
	c.lastPartner[partner] = userID
	c.lastChat[userID] = chatID
	c.lastChat[partner] = chatID

	return partner, chatID, true
}

// Skip ends the user's current session (if any) and immediately re-enters
// them into matching, all under one lock acquisition. Modelling this as a
// single operation avoids the duplicate-notification bug of implementations
// where skip re-invokes the public find-partner handler.
//
// When RequeueSkipped is set the ex-partner re-enters matching too; both
// re-entries exclude each other so a skip never silently re-creates the
// session it just tore down.
func (c *Coordinator) Skip(userID string) (SkipResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res SkipResult
	former, chatID, had := c.endSessionLocked(userID)
	if had {
		res.FormerPartner = former
		res.FormerChatID = chatID
	}

	rematch, err := c.tryMatchLocked(userID, former)
	if err != nil {
		return SkipResult{}, err
	}
	res.Rematch = rematch

	if had && c.cfg.RequeueSkipped {
		pr, err := c.tryMatchLocked(former, userID)
		if err == nil {
			res.PartnerResult = &pr
		}
		// An unknown ex-partner record is not the skipper's problem; leave
		// PartnerResult nil and move on.
	}

	return res, nil
}

// Cancel removes the user from the waitlist (explicit stop while searching).
// Returns whether the user was queued.
func (c *Coordinator) Cancel(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wait.Remove(userID)
}

// PartnerOf returns the active session partner, if any.
func (c *Coordinator) PartnerOf(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	partner, ok := c.active[userID]
	return partner, ok
}

// ChatIDOf returns the chat ID of the user's active session, if any.
func (c *Coordinator) ChatIDOf(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.chats[userID]
	return id, ok
}

// IsQueued reports whether the user is currently waiting for a partner.
func (c *Coordinator) IsQueued(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.wait.Contains(userID)
	return ok
}

// LastPartner returns the user's most recent former partner, if any.
func (c *Coordinator) LastPartner(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.lastPartner[userID]
	return p, ok
}

// LastChatID returns the chat ID of the user's most recent former session.
func (c *Coordinator) LastChatID(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.lastChat[userID]
	return id, ok
}

// QueueLen returns the number of waiting users.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wait.Len()
}

// SessionCount returns the number of committed pairings.
func (c *Coordinator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active) / 2
}

// Snapshot returns the persistable pairing state: queue contents in order,
// the session table, and the last-partner map.
func (c *Coordinator) Snapshot() (queues map[string][]string, active, lastPartner map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queues = c.wait.Snapshot()
	active = make(map[string]string, len(c.active))
	for k, v := range c.active {
		active[k] = v
	}
	lastPartner = make(map[string]string, len(c.lastPartner))
	for k, v := range c.lastPartner {
		lastPartner[k] = v
	}
	return queues, active, lastPartner
}

// Restore replaces the pairing state with a persisted snapshot. The session
// table is rebuilt pair by pair so that symmetry holds even for a damaged
// snapshot: self-pairs and one-sided entries are dropped, and any user with
// an active session is removed from the restored queue. Chat IDs are not
// persisted; surviving sessions get fresh ones.
func (c *Coordinator) Restore(queues map[string][]string, active, lastPartner map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = make(map[string]string)
	c.chats = make(map[string]string)
	for a, b := range active {
		if a == b || a == "" || b == "" {
			continue
		}
		if active[b] != a {
			continue // one-sided entry, drop
		}
		if _, done := c.active[a]; done {
			continue
		}
		chatID := uuid.New().String()
		c.active[a] = b
		c.active[b] = a
		c.chats[a] = chatID
		c.chats[b] = chatID
	}

	c.wait.Restore(queues)
	for user := range c.active {
		c.wait.Remove(user)
	}

	c.lastPartner = make(map[string]string, len(lastPartner))
	for k, v := range lastPartner {
		c.lastPartner[k] = v
	}
	c.lastChat = make(map[string]string)
}
