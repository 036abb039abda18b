package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.table {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.NewString()
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.table {
		if filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(user.QueryFilter)
	}
	res := make([]user.User, 0, len(repo.db.table))
	for _, usr := range repo.db.table {
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(usr.Name), filter.Search) &&
			!strings.Contains(usr.Username, filter.Search) &&
			!strings.Contains(usr.Email, filter.Search) {
			continue
		}
		if len(filter.Roles) > 0 && !hasAnyRole(usr, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		res = append(res, *usr)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(res, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(res[i], res[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func hasAnyRole(usr *user.User, roles []string) bool {
	for _, want := range roles {
		for _, role := range usr.Roles {
			if role == want {
				return true
			}
		}
	}
	return false
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "last_login":
		return a.LastLogin.Compare(b.LastLogin)
	}
	return 0
}

func (repo *userRepository) DeactivateUsers(_ context.Context, at time.Time, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		if usr, ok := repo.db.table[id]; ok {
			usr.IsActive = false
			usr.UpdatedAt = at
		}
	}
	return nil
}
