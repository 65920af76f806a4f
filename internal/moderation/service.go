package moderation

import (
	"log"
	"time"

	"github.com/pairline/pairline/internal/directory"
)

// Default moderation policy values.
const (
	// DefaultBanThreshold is the number of accumulated reports that triggers
	// a ban.
	DefaultBanThreshold = 10
	// DefaultBanDuration is how long a triggered ban lasts.
	DefaultBanDuration = 24 * time.Hour
)

// ReportKind classifies the outcome of filing a report.
type ReportKind int

const (
	// NothingToReport means the reporter has no former partner on record.
	NothingToReport ReportKind = iota
	// Recorded means the report was counted but the target is below the
	// ban threshold.
	Recorded
	// Banned means this report pushed the target over the threshold and a
	// ban was applied.
	Banned
)

// ReportOutcome describes a filed report.
type ReportOutcome struct {
	Kind     ReportKind
	TargetID string    // who was reported (Recorded, Banned)
	Count    int       // report count after filing (Recorded)
	Until    time.Time // ban expiry (Banned)
}

// PartnerLog is the slice of the matching coordinator the ban service needs:
// the last-partner back-reference recorded at session teardown.
type PartnerLog interface {
	LastPartner(userID string) (string, bool)
}

// Service owns the report counters and ban expiries on user records. It is
// the only component that mutates those fields; everything else just reads
// the ban state through IsBanned.
type Service struct {
	dir      *directory.Store
	partners PartnerLog

	threshold   int
	banDuration time.Duration
	now         func() time.Time
}

// NewService creates a moderation service with the given policy. A zero
// threshold or duration falls back to the defaults.
func NewService(dir *directory.Store, partners PartnerLog, threshold int, banDuration time.Duration) *Service {
	if threshold <= 0 {
		threshold = DefaultBanThreshold
	}
	if banDuration <= 0 {
		banDuration = DefaultBanDuration
	}
	return &Service{
		dir:         dir,
		partners:    partners,
		threshold:   threshold,
		banDuration: banDuration,
		now:         time.Now,
	}
}

// FileReport files a report against the reporter's most recent former
// partner. A report is only attributable to that one user; with nobody on
// record the call is a harmless no-op. Crossing the threshold applies a ban
// and resets the target's report counter, so a repeat ban needs a fresh run
// of reports.
func (s *Service) FileReport(reporterID string) (ReportOutcome, error) {
	target, ok := s.partners.LastPartner(reporterID)
	if !ok || target == "" {
		return ReportOutcome{Kind: NothingToReport}, nil
	}

	count, err := s.dir.AddReport(target)
	if err != nil {
		return ReportOutcome{}, err
	}

	if count < s.threshold {
		return ReportOutcome{Kind: Recorded, TargetID: target, Count: count}, nil
	}

	until := s.now().Add(s.banDuration)
	if err := s.dir.ApplyBan(target, until); err != nil {
		return ReportOutcome{}, err
	}
	return ReportOutcome{Kind: Banned, TargetID: target, Until: until}, nil
}

// IsBanned returns the active ban expiry for the user, if any. An expired
// ban is cleared on read; there is no background sweep.
func (s *Service) IsBanned(userID string) (time.Time, bool) {
	u, ok := s.dir.Get(userID)
	if !ok || u.BannedUntil.IsZero() {
		return time.Time{}, false
	}
	if u.BannedUntil.After(s.now()) {
		return u.BannedUntil, true
	}
	// Lazy expiry.
	if err := s.dir.ClearBan(userID); err != nil {
		log.Printf("[moderation] clear expired ban for %s: %v", userID, err)
	}
	return time.Time{}, false
}
