package queue

import (
	"testing"

	"github.com/pairline/pairline/internal/directory"
)

func TestEnqueue_Idempotent(t *testing.T) {
	w := New()

	if !w.Enqueue("u1", "male") {
		t.Fatal("first Enqueue should insert")
	}
	if w.Enqueue("u1", "male") {
		t.Error("second Enqueue should be a no-op")
	}
	if w.Enqueue("u1", "female") {
		t.Error("Enqueue into a different bucket should still be a no-op")
	}
	if w.Len() != 1 {
		t.Errorf("expected 1 queued user, got %d", w.Len())
	}
}

func TestPop_FIFOOrder(t *testing.T) {
	w := New()
	w.Enqueue("a", "b1")
	w.Enqueue("b", "b1")
	w.Enqueue("c", "b1")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := w.Pop("b1", "requester")
		if !ok {
			t.Fatalf("Pop returned no candidate, want %q", want)
		}
		if got != want {
			t.Errorf("Pop = %q, want %q", got, want)
		}
	}

	if _, ok := w.Pop("b1", "requester"); ok {
		t.Error("Pop on empty bucket should return false")
	}
}

func TestPop_SkipsSelf(t *testing.T) {
	w := New()
	w.Enqueue("me", "b1")
	w.Enqueue("other", "b1")

	got, ok := w.Pop("b1", "me")
	if !ok || got != "other" {
		t.Fatalf("Pop = %q, %v; want \"other\", true", got, ok)
	}

	// "me" must still be queued — the self entry is skipped, not consumed.
	if _, queued := w.Contains("me"); !queued {
		t.Error("self entry should remain queued after Pop")
	}

	// With only the requester queued there is no candidate.
	if _, ok := w.Pop("b1", "me"); ok {
		t.Error("Pop must never return the requester itself")
	}
}

func TestRemove(t *testing.T) {
	w := New()
	w.Enqueue("a", "b1")
	w.Enqueue("b", "b1")

	if !w.Remove("a") {
		t.Fatal("Remove should report true for a queued user")
	}
	if w.Remove("a") {
		t.Error("Remove should report false for an already removed user")
	}
	if _, ok := w.Contains("a"); ok {
		t.Error("removed user should not be queued")
	}

	// Removal must not disturb the rest of the queue.
	got, ok := w.Pop("b1", "x")
	if !ok || got != "b" {
		t.Errorf("Pop after Remove = %q, %v; want \"b\", true", got, ok)
	}
}

func TestSnapshotRestore_PreservesOrder(t *testing.T) {
	w := New()
	w.Enqueue("a", "b1")
	w.Enqueue("b", "b2")
	w.Enqueue("c", "b1")

	restored := New()
	restored.Restore(w.Snapshot())

	if restored.Len() != 3 {
		t.Fatalf("expected 3 queued users, got %d", restored.Len())
	}
	got, _ := restored.Pop("b1", "x")
	if got != "a" {
		t.Errorf("restore lost FIFO order: head = %q, want \"a\"", got)
	}
}

func TestRestore_DropsDuplicates(t *testing.T) {
	w := New()
	w.Restore(map[string][]string{
		"b1": {"a", "b"},
		"b2": {"a"}, // duplicate of b1's head
	})
	if w.Len() != 2 {
		t.Errorf("expected duplicate dropped, Len=%d", w.Len())
	}
}

func TestOppositeGenderPolicy(t *testing.T) {
	p := OppositeGender{}
	male := directory.User{Gender: directory.GenderMale}
	female := directory.User{Gender: directory.GenderFemale}

	// A user waits in the bucket keyed by the gender they want to meet, and
	// is found there by seekers of that gender. The two sides must line up.
	if p.WaitBucket(male) != p.SeekBucket(female) {
		t.Error("male wait bucket should equal female seek bucket")
	}
	if p.WaitBucket(female) != p.SeekBucket(male) {
		t.Error("female wait bucket should equal male seek bucket")
	}
	if p.WaitBucket(male) == p.WaitBucket(female) {
		t.Error("wait buckets must differ between genders")
	}
}

func TestSinglePoolPolicy(t *testing.T) {
	p := SinglePool{}
	a := directory.User{Gender: directory.GenderMale}
	b := directory.User{}
	if p.WaitBucket(a) != p.SeekBucket(b) {
		t.Error("single pool must use one shared bucket")
	}
}
