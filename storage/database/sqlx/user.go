package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cohort/core/user"
)

const userColumns = `id, name, username, email, role, is_approved, is_active, created_at`

type userRow struct {
	ID         string      `db:"id"`
	Name       string      `db:"name"`
	Username   string      `db:"username"`
	Email      null.String `db:"email"`
	Role       string      `db:"role"`
	IsApproved bool        `db:"is_approved"`
	IsActive   bool        `db:"is_active"`
	CreatedAt  time.Time   `db:"created_at"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:         r.ID,
		Name:       r.Name,
		Username:   r.Username,
		Email:      r.Email.String,
		Role:       r.Role,
		IsApproved: r.IsApproved,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string) error {
	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM "user" WHERE username = $1 OR (email IS NOT NULL AND email = $2)`
	if err := repo.db.SelectContext(ctx, &rows, q, username, email); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if r.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	row := userRow{
		ID:         usr.ID,
		Name:       usr.Name,
		Username:   usr.Username,
		Email:      null.NewString(usr.Email, usr.Email != ""),
		Role:       usr.Role,
		IsApproved: usr.IsApproved,
		IsActive:   usr.IsActive,
		CreatedAt:  usr.CreatedAt.UTC(),
	}
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES (:id, :name, :username, :email, :role, :is_approved, :is_active, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row userRow
		err error
	)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, filter.ID)
	case filter.Username != "":
		err = repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE username = $1`, filter.Username)
	case filter.Email != "":
		err = repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE email = $1`, filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, "finding user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	var w where
	if filter != nil {
		if filter.IDs != nil {
			w.add("id = ANY(?)", pq.Array(validUUIDs(filter.IDs)))
		}
		if filter.Roles != nil {
			w.add("role = ANY(?)", pq.Array(filter.Roles))
		}
		if filter.IsApproved != nil {
			w.add("is_approved = ?", *filter.IsApproved)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM "user"` + w.String() + ` ORDER BY username`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) SetApproved(ctx context.Context, id string, approved bool) (user.User, error) {
	if !isUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	q := `UPDATE "user" SET is_approved = $2 WHERE id = $1 RETURNING ` + userColumns
	if err := repo.db.GetContext(ctx, &row, q, id, approved); err != nil {
		return user.User{}, trapNoRowsErr(err, "updating user approval")
	}
	return row.user(), nil
}
