package directory

import (
	"fmt"
	"sync"
	"time"
)

// CompletionPolicy decides which profile fields are required before a user
// may enter matchmaking. Deployments differ: some only ask for a gender,
// others want the full profile.
type CompletionPolicy int

const (
	// RequireGender needs only the gender to be set.
	RequireGender CompletionPolicy = iota
	// RequireFullProfile needs gender, age, and country.
	RequireFullProfile
)

// Store is the in-memory user directory. A single mutex serialises updates so
// that each record mutation is atomic; the store is shared by the dispatcher,
// the matching coordinator, and the moderation subsystem.
type Store struct {
	mu     sync.RWMutex
	users  map[string]*User
	policy CompletionPolicy
}

// NewStore creates an empty directory with the given completion policy.
func NewStore(policy CompletionPolicy) *Store {
	return &Store{
		users:  make(map[string]*User),
		policy: policy,
	}
}

// GetOrCreate returns the record for userID, creating a blank one on first
// contact. It never overwrites fields of an existing record. Empty user IDs
// are rejected.
func (s *Store) GetOrCreate(userID string) (User, error) {
	if userID == "" {
		return User{}, fmt.Errorf("directory: empty user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &User{ID: userID, CreatedAt: time.Now().Unix()}
		s.users[userID] = u
	}
	return *u, nil
}

// Get returns a copy of the record, or false if the user is unknown.
func (s *Store) Get(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// SetGender updates the user's gender. Unknown users are created first so
// that profile commands are order-independent.
func (s *Store) SetGender(userID string, g Gender) error {
	if g == GenderUnset {
		return fmt.Errorf("directory: invalid gender")
	}
	return s.mutate(userID, func(u *User) { u.Gender = g })
}

// SetAge updates the user's age. Ages outside a sane range are rejected as
// user input errors.
func (s *Store) SetAge(userID string, age int) error {
	if age < 13 || age > 120 {
		return fmt.Errorf("directory: age %d out of range", age)
	}
	return s.mutate(userID, func(u *User) { u.Age = age })
}

// SetCountry updates the user's country.
func (s *Store) SetCountry(userID string, country string) error {
	if country == "" {
		return fmt.Errorf("directory: empty country")
	}
	return s.mutate(userID, func(u *User) { u.Country = country })
}

// Reset clears the profile fields of a user (the /start re-registration
// path). Moderation fields are deliberately kept: re-registering must not
// wash away reports or an active ban.
func (s *Store) Reset(userID string) error {
	return s.mutate(userID, func(u *User) {
		u.Gender = GenderUnset
		u.Age = 0
		u.Country = ""
	})
}

// IsComplete reports whether the user's profile satisfies the completion
// policy. Unknown users are never complete.
func (s *Store) IsComplete(userID string) bool {
	u, ok := s.Get(userID)
	if !ok {
		return false
	}
	switch s.policy {
	case RequireFullProfile:
		return u.Gender != GenderUnset && u.Age != 0 && u.Country != ""
	default:
		return u.Gender != GenderUnset
	}
}

// AddReport increments the report counter and returns the new count.
func (s *Store) AddReport(userID string) (int, error) {
	var count int
	err := s.mutate(userID, func(u *User) {
		u.ReportCount++
		count = u.ReportCount
	})
	return count, err
}

// ApplyBan sets the ban expiry and resets the report counter, so that a
// repeat ban needs a fresh run of reports.
func (s *Store) ApplyBan(userID string, until time.Time) error {
	return s.mutate(userID, func(u *User) {
		u.BannedUntil = until
		u.ReportCount = 0
	})
}

// ClearBan removes an (expired or lifted) ban.
func (s *Store) ClearBan(userID string) error {
	return s.mutate(userID, func(u *User) { u.BannedUntil = time.Time{} })
}

// Snapshot returns a copy of every record keyed by user ID, for persistence.
func (s *Store) Snapshot() map[string]User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]User, len(s.users))
	for id, u := range s.users {
		out[id] = *u
	}
	return out
}

// Restore replaces the directory contents with a persisted snapshot.
func (s *Store) Restore(users map[string]User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*User, len(users))
	for id, u := range users {
		copied := u
		copied.ID = id
		s.users[id] = &copied
	}
}

// mutate applies fn to the record under the store lock, creating the record
// if needed.
func (s *Store) mutate(userID string, fn func(*User)) error {
	if userID == "" {
		return fmt.Errorf("directory: empty user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &User{ID: userID, CreatedAt: time.Now().Unix()}
		s.users[userID] = u
	}
	fn(u)
	return nil
}
