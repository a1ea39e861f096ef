// Package sqlxrepos implements the repositories on Postgres with jmoiron/sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
)

// shutdownClass is the postgres error class of an operator intervention (admin_shutdown, crash_shutdown...).
const shutdownClass = "57"

// trapNoRowsErr maps psql "no rows" err to core.ErrNotFound and a server going down to a shutdown error.
func trapNoRowsErr(err error, msg string) error {
	cause := errors.Cause(err)
	if cause == sql.ErrNoRows {
		return core.ErrNotFound
	}
	if pqErr, ok := cause.(*pq.Error); ok && pqErr.Code.Class() == shutdownClass {
		return core.NewShutdownError(msg + ": " + pqErr.Message)
	}
	return errors.Wrap(err, msg)
}

// isUUID guards lookups: postgres rejects malformed uuids with a syntax error instead of no rows.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validUUIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	list := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		list = append(list, ord.String()+" NULLS FIRST")
	}
	list = append(list, fallback)
	return " ORDER BY " + strings.Join(list, ", ")
}

// where accumulates AND-ed conditions with positional args.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Locker serializes work across API instances with postgres session advisory locks.
// The locks of one call are held on a dedicated connection released with them.
type Locker struct {
	db *sqlx.DB
}

var _ core.Locker = (*Locker)(nil) // interface compliance check

func NewLocker(db *sqlx.DB) *Locker {
	return &Locker{db: db}
}

func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := core.NewStringSet(keys...).Sorted()
	if len(sorted) == 0 {
		return func() {}, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, trapNoRowsErr(err, "getting lock connection")
	}
	held := make([]string, 0, len(sorted))
	release := func() {
		// unlocking must survive a cancelled request context
		bg := context.Background()
		for i := len(held) - 1; i >= 0; i-- {
			_, _ = conn.ExecContext(bg, "SELECT pg_advisory_unlock(hashtext($1))", held[i])
		}
		_ = conn.Close()
	}
	for _, key := range sorted {
		if _, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
			release()
			return nil, errors.Wrapf(err, "locking %s", key)
		}
		held = append(held, key)
	}
	return release, nil
}
