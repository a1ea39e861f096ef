// Package inmemdb stores everything in process memory. It backs the tests and database-less debug runs.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/review"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
)

type (
	DB struct {
		user         *userTable
		course       *courseTable
		task         *taskTable
		notification *notificationTable
		review       *reviewTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		courses  map[string]*course.Course
		batches  map[string]*course.Batch
		students map[string]core.StringSet // batch id -> student ids
		welcomed map[string]core.StringSet // batch id -> announced student ids
	}

	taskTable struct {
		sync.RWMutex
		tasks       map[string]*task.Task
		assignees   map[string]core.StringSet // task id -> student ids
		submissions map[string]*task.Submission
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}

	reviewTable struct {
		sync.RWMutex
		table map[review.Key]*review.Review
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			courses:  make(map[string]*course.Course),
			batches:  make(map[string]*course.Batch),
			students: make(map[string]core.StringSet),
			welcomed: make(map[string]core.StringSet),
		},
		task: &taskTable{
			tasks:       make(map[string]*task.Task),
			assignees:   make(map[string]core.StringSet),
			submissions: make(map[string]*task.Submission),
		},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
		review:       &reviewTable{table: make(map[review.Key]*review.Review)},
	}
}

// Locker hands out one mutex per key, acquired in sorted order.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ core.Locker = (*Locker)(nil) // interface compliance check

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

func (l *Locker) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = new(sync.Mutex)
		l.locks[key] = m
	}
	return m
}

func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := core.NewStringSet(keys...).Sorted()
	held := make([]*sync.Mutex, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
	for _, key := range sorted {
		if err := ctx.Err(); err != nil {
			release()
			return nil, err
		}
		m := l.get(key)
		m.Lock()
		held = append(held, m)
	}
	return release, nil
}
