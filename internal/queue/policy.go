package queue

import "github.com/pairline/pairline/internal/directory"

// BucketPolicy decides which bucket a user waits in and which bucket a user
// searches when looking for a partner. Callers choose the policy at startup;
// the coordinator treats it as opaque.
type BucketPolicy interface {
	// WaitBucket returns the bucket the user should be enqueued into.
	WaitBucket(u directory.User) string
	// SeekBucket returns the bucket to dequeue a partner from.
	SeekBucket(u directory.User) string
}

// OppositeGender partitions the waitlist by desired partner gender: a user
// waits in the bucket named after the gender they want to meet, and seeks in
// the bucket of users who want their own gender. With the two-gender model
// the two lookups are symmetric, so compatibility is mutual by construction.
type OppositeGender struct{}

func (OppositeGender) WaitBucket(u directory.User) string {
	return string(u.Gender.Opposite())
}

func (OppositeGender) SeekBucket(u directory.User) string {
	return string(u.Gender)
}

// SinglePool is the degenerate first-come-first-served policy: everyone
// waits in and seeks from one shared bucket, regardless of profile.
type SinglePool struct{}

const poolBucket = "any"

func (SinglePool) WaitBucket(directory.User) string { return poolBucket }
func (SinglePool) SeekBucket(directory.User) string { return poolBucket }
