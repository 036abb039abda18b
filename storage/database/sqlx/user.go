package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/user"
)

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Roles        string      `db:"roles"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        strings.Join(usr.Roles, ","),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
		LastLogin:    null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        splitList(r.Roles),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}
	var rows []userRow
	q := "SELECT " + userColumns + " FROM users WHERE (username = $1 OR email = $2) AND NOT (id::text = ANY($3)) LIMIT 2"
	if err := repo.db.SelectContext(ctx, &rows, q, username, email, pq.Array(excluded)); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, r := range rows {
		if username != "" && r.Username.String == username {
			return user.ErrUsernameExists
		}
		if email != "" && r.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	q := "INSERT INTO users (" + userColumns + ") VALUES " +
		"(:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)"
	if _, err := namedExec(ctx, repo.db, q, newUserRow(usr)); err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if strings.Contains(constraint, "email") {
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row userRow
		err error
	)
	switch {
	case filter.ID != "":
		if _, perr := uuid.Parse(filter.ID); perr != nil {
			return user.User{}, user.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE id = $1", filter.ID)
	case filter.UsernameOrEmail != "":
		err = repo.db.GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE username = $1 OR email = $1 LIMIT 1", filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := "UPDATE users SET name = :name, username = :username, email = :email, is_active = :is_active, roles = :roles, " +
		"password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login WHERE id = :id"
	res, err := namedExec(ctx, repo.db, q, newUserRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			w.add("(name ILIKE $%[1]d OR username ILIKE $%[1]d OR email ILIKE $%[1]d)", "%"+filter.Search+"%")
		}
		if len(filter.Roles) > 0 {
			w.add("string_to_array(roles, ',') && $%d", pq.Array(filter.Roles))
		}
		if filter.IsActive != nil {
			w.add("is_active = $%d", *filter.IsActive)
		}
	}

	var rows []userRow
	q := "SELECT " + userColumns + " FROM users" + w.String() + orderBy(ordering, "name ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	res := make([]user.User, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toUser())
	}
	return res, nil
}

func (repo *userRepository) DeactivateUsers(ctx context.Context, at time.Time, ids ...string) error {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	q := "UPDATE users SET is_active = FALSE, updated_at = $1 WHERE id::text = ANY($2)"
	if _, err := repo.db.ExecContext(ctx, q, at, pq.Array(valid)); err != nil {
		return errors.Wrap(err, "deactivating users")
	}
	return nil
}
