package directory

import (
	"testing"
	"time"
)

func TestGetOrCreate_Idempotent(t *testing.T) {
	s := NewStore(RequireGender)

	u1, err := s.GetOrCreate("u1")
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if u1.ID != "u1" {
		t.Errorf("expected ID=u1, got %q", u1.ID)
	}

	// Set a field, then call GetOrCreate again — it must not reset anything.
	if err := s.SetGender("u1", GenderMale); err != nil {
		t.Fatalf("SetGender() error: %v", err)
	}
	u2, err := s.GetOrCreate("u1")
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if u2.Gender != GenderMale {
		t.Errorf("GetOrCreate overwrote gender: got %q", u2.Gender)
	}
}

func TestGetOrCreate_EmptyID(t *testing.T) {
	s := NewStore(RequireGender)
	if _, err := s.GetOrCreate(""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestSetAge_Validation(t *testing.T) {
	s := NewStore(RequireFullProfile)
	cases := []struct {
		age int
		ok  bool
	}{
		{12, false},
		{13, true},
		{42, true},
		{120, true},
		{121, false},
		{-1, false},
	}
	for _, tc := range cases {
		err := s.SetAge("u1", tc.age)
		if tc.ok && err != nil {
			t.Errorf("SetAge(%d) unexpected error: %v", tc.age, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("SetAge(%d) expected error, got nil", tc.age)
		}
	}
}

func TestIsComplete_Policies(t *testing.T) {
	genderOnly := NewStore(RequireGender)
	full := NewStore(RequireFullProfile)

	for _, s := range []*Store{genderOnly, full} {
		s.GetOrCreate("u1")
		s.SetGender("u1", GenderFemale)
	}

	if !genderOnly.IsComplete("u1") {
		t.Error("gender-only policy: expected complete after SetGender")
	}
	if full.IsComplete("u1") {
		t.Error("full-profile policy: expected incomplete without age/country")
	}

	full.SetAge("u1", 25)
	full.SetCountry("u1", "DE")
	if !full.IsComplete("u1") {
		t.Error("full-profile policy: expected complete after all fields set")
	}

	if genderOnly.IsComplete("unknown") {
		t.Error("unknown user must never be complete")
	}
}

func TestReset_KeepsModerationState(t *testing.T) {
	s := NewStore(RequireGender)
	s.GetOrCreate("u1")
	s.SetGender("u1", GenderMale)
	s.AddReport("u1")
	s.ApplyBan("u1", time.Now().Add(time.Hour))

	if err := s.Reset("u1"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	u, _ := s.Get("u1")
	if u.Gender != GenderUnset {
		t.Errorf("expected gender cleared, got %q", u.Gender)
	}
	if u.BannedUntil.IsZero() {
		t.Error("Reset must not clear an active ban")
	}
}

func TestApplyBan_ResetsReportCount(t *testing.T) {
	s := NewStore(RequireGender)
	for i := 0; i < 10; i++ {
		s.AddReport("u1")
	}
	u, _ := s.Get("u1")
	if u.ReportCount != 10 {
		t.Fatalf("expected 10 reports, got %d", u.ReportCount)
	}

	until := time.Now().Add(24 * time.Hour)
	s.ApplyBan("u1", until)

	u, _ = s.Get("u1")
	if u.ReportCount != 0 {
		t.Errorf("expected report count reset to 0 on ban, got %d", u.ReportCount)
	}
	if !u.Banned(time.Now()) {
		t.Error("expected active ban")
	}
	if u.Banned(until.Add(time.Second)) {
		t.Error("ban should not be active past expiry")
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	s := NewStore(RequireGender)
	s.GetOrCreate("a")
	s.SetGender("a", GenderMale)
	s.SetAge("a", 30)
	s.GetOrCreate("b")
	s.AddReport("b")

	snap := s.Snapshot()

	restored := NewStore(RequireGender)
	restored.Restore(snap)

	a, ok := restored.Get("a")
	if !ok || a.Gender != GenderMale || a.Age != 30 {
		t.Errorf("restored record mismatch: %+v ok=%v", a, ok)
	}
	b, _ := restored.Get("b")
	if b.ReportCount != 1 {
		t.Errorf("expected 1 report on restored b, got %d", b.ReportCount)
	}
}

func TestParseGender(t *testing.T) {
	cases := []struct {
		in   string
		want Gender
	}{
		{"male", GenderMale},
		{"m", GenderMale},
		{"female", GenderFemale},
		{"f", GenderFemale},
		{"other", GenderUnset},
		{"", GenderUnset},
	}
	for _, tc := range cases {
		if got := ParseGender(tc.in); got != tc.want {
			t.Errorf("ParseGender(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenderOpposite(t *testing.T) {
	if GenderMale.Opposite() != GenderFemale {
		t.Error("male opposite should be female")
	}
	if GenderFemale.Opposite() != GenderMale {
		t.Error("female opposite should be male")
	}
	if GenderUnset.Opposite() != GenderUnset {
		t.Error("unset opposite should be unset")
	}
}
