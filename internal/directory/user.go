// Package directory holds per-user profile and moderation state. It is the
// leaf data store of the service: every other component reads user records
// from here, and the moderation subsystem is the only writer of the
// report/ban fields.
package directory

import (
	"strings"
	"time"
)

// Gender is the user's self-reported gender.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Opposite returns the other gender, or GenderUnset for an unset gender.
func (g Gender) Opposite() Gender {
	switch g {
	case GenderMale:
		return GenderFemale
	case GenderFemale:
		return GenderMale
	default:
		return GenderUnset
	}
}

// ParseGender normalises a user-supplied gender string. Accepts a few common
// spellings; returns GenderUnset for anything unrecognised.
func ParseGender(s string) Gender {
	switch strings.ToLower(s) {
	case "male", "m", "boy", "man":
		return GenderMale
	case "female", "f", "girl", "woman":
		return GenderFemale
	default:
		return GenderUnset
	}
}

// User is a single user record. Records are created on first contact and
// never deleted; bans expire by time, not by removal.
type User struct {
	ID          string    `json:"id"`
	Gender      Gender    `json:"gender,omitempty"`
	Age         int       `json:"age,omitempty"`     // 0 = unset
	Country     string    `json:"country,omitempty"` // "" = unset
	ReportCount int       `json:"report_count,omitempty"`
	BannedUntil time.Time `json:"banned_until,omitempty"` // zero = no ban
	Premium     bool      `json:"premium,omitempty"`      // feature stub, never set
	CreatedAt   int64     `json:"created_at"`             // unix timestamp
}

// Banned reports whether the user has an active ban at the given instant.
func (u *User) Banned(now time.Time) bool {
	return !u.BannedUntil.IsZero() && u.BannedUntil.After(now)
}
