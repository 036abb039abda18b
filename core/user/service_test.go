package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/user"
	inmemdb "github.com/kannanru/studentfee/storage/database/inmem"
	testutil "github.com/kannanru/studentfee/tests"
)

func newService() (*user.Service, user.Repository) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return user.NewService(repo), repo
}

func TestPasswordPolicyViolation(t *testing.T) {
	tests := []struct {
		pwd   string
		attrs []string
		want  string
	}{
		{pwd: "Pa$s1", want: "pwdminlen"},
		{pwd: "Pa$s w0rd", want: "pwdnospace"},
		{pwd: "12345678", want: "pwdnotallnum"},
		{pwd: "password1!", want: "pwdcplx"},
		{pwd: "Asha.Rao1", attrs: []string{"Asha Rao"}, want: "pwdtoosim"},
		{pwd: "Kolam#2026x", attrs: []string{"Asha Rao", "asha"}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.pwd, func(t *testing.T) {
			assert.Equal(t, tc.want, user.PasswordPolicyViolation(tc.pwd, tc.attrs...))
		})
	}
}

func TestNewUser_Validate(t *testing.T) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	svc, repo := newService()
	testutil.CreateUser(t, repo, "Taken", "taken", "taken@example.com", "", nil, true)

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr bool
	}{
		{
			name: "valid",
			nu:   user.NewUser{Name: "Clerk", Username: "clerk1", Password: "Kolam#2026x", PasswordConfirm: "Kolam#2026x", Roles: []string{user.RoleAccountant}},
		},
		{
			name:    "no username or email",
			nu:      user.NewUser{Name: "Clerk", Password: "Kolam#2026x", PasswordConfirm: "Kolam#2026x"},
			wantErr: true,
		},
		{
			name:    "unknown role",
			nu:      user.NewUser{Name: "Clerk", Username: "clerk1", Password: "Kolam#2026x", PasswordConfirm: "Kolam#2026x", Roles: []string{"janitor:"}},
			wantErr: true,
		},
		{
			name:    "passwords differ",
			nu:      user.NewUser{Name: "Clerk", Username: "clerk1", Password: "Kolam#2026x", PasswordConfirm: "Kolam#2026y"},
			wantErr: true,
		},
		{
			name:    "username taken",
			nu:      user.NewUser{Name: "Clerk", Username: " TAKEN ", Password: "Kolam#2026x", PasswordConfirm: "Kolam#2026x"},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.nu.Validate(validate, svc)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	usr, err := svc.Create(ctx, user.NewUser{Name: "Clerk", Username: "clerk1", Email: "clerk@example.com", Password: "Kolam#2026x"})
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("Kolam#2026x"))

	got, err := svc.GetByUsernameOrEmail(ctx, " Clerk@Example.com")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByID(ctx, "nope")
	assert.Equal(t, user.ErrNotFound, err)

	usr, err = svc.ResetPassword(ctx, "clerk1", "N3w#Secret!")
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("N3w#Secret!"))

	admin, err := svc.SaveAdmin(ctx, "Owner", "clerk1", "", "Adm1n#Secret")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, admin.ID)
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.CanCollectFees())

	admin, err = svc.SaveAdmin(ctx, "Root", "root", "root@example.com", "Adm1n#Secret")
	require.NoError(t, err)
	assert.NotEqual(t, usr.ID, admin.ID)
	assert.Equal(t, user.AllRoles, admin.Roles)
}

func TestUpdateUser_Validate(t *testing.T) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	svc, repo := newService()
	testutil.CreateUser(t, repo, "Taken", "taken", "taken@example.com", "", nil, true)
	orig := testutil.CreateUser(t, repo, "Clerk", "clerk1", "clerk@example.com", "", nil, true)

	tests := []struct {
		name    string
		uu      user.UpdateUser
		wantErr bool
	}{
		{name: "nothing"},
		{name: "same username", uu: user.UpdateUser{Username: "CLERK1"}},
		{name: "new password", uu: user.UpdateUser{Password: "Kolam#2026x", PasswordConfirm: "Kolam#2026x"}},
		{name: "confirm missing", uu: user.UpdateUser{Password: "Kolam#2026x"}, wantErr: true},
		{name: "weak password", uu: user.UpdateUser{Password: "password", PasswordConfirm: "password"}, wantErr: true},
		{name: "username taken", uu: user.UpdateUser{Username: "taken"}, wantErr: true},
		{name: "email taken", uu: user.UpdateUser{Email: "taken@example.com"}, wantErr: true},
		{name: "unknown role", uu: user.UpdateUser{Roles: []string{"janitor:"}}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.uu.Validate(orig, validate, svc)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_admin(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()

	clerk := testutil.CreateUser(t, repo, "Clerk", "clerk1", "clerk@example.com", "", []string{user.RoleAccountant}, true)
	teacher := testutil.CreateUser(t, repo, "Meena", "meena", "meena@example.com", "", []string{user.RoleTeacher}, true)

	users, err := svc.Query(ctx, &user.QueryFilter{Roles: []string{user.RoleTeacher}}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, teacher.ID, users[0].ID)

	// unknown ordering fields are dropped
	users, err = svc.Query(ctx, nil, []core.DBOrdering{{Field: "password_hash"}, {Field: "name", Ascending: false}})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, teacher.ID, users[0].ID)

	active := false
	upd, err := svc.Update(ctx, clerk.ID, user.UpdateUser{
		Name: "Head Clerk", Username: clerk.Username, Email: clerk.Email, IsActive: &active, Password: "Kolam#2026x",
	})
	require.NoError(t, err)
	assert.Equal(t, "Head Clerk", upd.Name)
	assert.False(t, upd.IsActive)
	assert.Equal(t, clerk.Roles, upd.Roles)
	assert.NoError(t, upd.CheckPassword("Kolam#2026x"))

	_, err = svc.Update(ctx, "nope", user.UpdateUser{Name: "Ghost"})
	assert.Equal(t, user.ErrNotFound, err)

	require.NoError(t, svc.Delete(ctx, teacher.ID, "nope"))
	got, err := svc.GetByID(ctx, teacher.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active = true
	users, err = svc.Query(ctx, &user.QueryFilter{IsActive: &active}, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
