package core

import "context"

// Locker provides mutual exclusion scopes keyed by arbitrary strings (eg. "batch:<id>").
// Lock blocks until every key is held; the returned func releases them all.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (release func(), err error)
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// BatchLockKey is the Locker key serializing membership & audience mutations of a Batch.
func BatchLockKey(batchID string) string {
	return "batch:" + batchID
}
