// Package queue implements the FIFO waiting list for matchmaking. The list is
// partitioned into buckets keyed by the matching preference (for example,
// the gender a waiting user wants to meet), with a degenerate single-pool
// variant for deployments without preference filtering.
//
// A Waitlist is NOT goroutine-safe: it is owned by the matching coordinator
// and only ever touched under the coordinator's matching lock. Keeping the
// structure lock-free keeps the critical section explicit and testable.
package queue

// Waitlist holds queued users, each in at most one bucket.
type Waitlist struct {
	buckets map[string][]string // bucket key -> user IDs, oldest first
	index   map[string]string   // user ID -> bucket key it waits in
}

// New creates an empty waitlist.
func New() *Waitlist {
	return &Waitlist{
		buckets: make(map[string][]string),
		index:   make(map[string]string),
	}
}

// Enqueue appends userID to the tail of the bucket. It is an idempotent
// no-op if the user is already waiting in any bucket; the return value
// reports whether an insertion happened.
func (w *Waitlist) Enqueue(userID, bucket string) bool {
	if _, queued := w.index[userID]; queued {
		return false
	}
	w.buckets[bucket] = append(w.buckets[bucket], userID)
	w.index[userID] = bucket
	return true
}

// Pop removes and returns the oldest entry of the bucket that is not in the
// exclude list. The first exclude is normally the requester's own ID, which
// guards against self-pairing; callers may add further IDs (for example the
// partner a skip just separated from).
func (w *Waitlist) Pop(bucket string, exclude ...string) (string, bool) {
	ids := w.buckets[bucket]
next:
	for i, id := range ids {
		for _, ex := range exclude {
			if id == ex {
				continue next
			}
		}
		w.buckets[bucket] = append(ids[:i:i], ids[i+1:]...)
		if len(w.buckets[bucket]) == 0 {
			delete(w.buckets, bucket)
		}
		delete(w.index, id)
		return id, true
	}
	return "", false
}

// Remove deletes userID from whichever bucket holds it. Returns whether the
// user was queued (explicit /stop-style cancellation).
func (w *Waitlist) Remove(userID string) bool {
	bucket, queued := w.index[userID]
	if !queued {
		return false
	}
	ids := w.buckets[bucket]
	for i, id := range ids {
		if id == userID {
			w.buckets[bucket] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(w.buckets[bucket]) == 0 {
		delete(w.buckets, bucket)
	}
	delete(w.index, userID)
	return true
}

// Contains reports whether userID is queued, and in which bucket.
func (w *Waitlist) Contains(userID string) (string, bool) {
	bucket, ok := w.index[userID]
	return bucket, ok
}

// Len returns the total number of waiting users across all buckets.
func (w *Waitlist) Len() int {
	return len(w.index)
}

// Snapshot returns the bucket contents in queue order, for persistence.
func (w *Waitlist) Snapshot() map[string][]string {
	out := make(map[string][]string, len(w.buckets))
	for bucket, ids := range w.buckets {
		out[bucket] = append([]string(nil), ids...)
	}
	return out
}

// Restore replaces the waitlist contents with a persisted snapshot,
// preserving queue order. Duplicate IDs across buckets are dropped on a
// first-seen-wins basis so the one-bucket invariant holds even for a
// hand-edited or stale snapshot.
func (w *Waitlist) Restore(buckets map[string][]string) {
	w.buckets = make(map[string][]string, len(buckets))
	w.index = make(map[string]string)
	for bucket, ids := range buckets {
		for _, id := range ids {
			if _, seen := w.index[id]; seen {
				continue
			}
			w.buckets[bucket] = append(w.buckets[bucket], id)
			w.index[id] = bucket
		}
	}
}
