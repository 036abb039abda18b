package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.NowFunc()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo student.Repository, rollNo, name, program string, year int, isActive bool) student.Student {
	t.Helper()
	now := core.NowFunc()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		RollNo:    rollNo,
		Name:      name,
		Program:   program,
		Year:      year,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return std
}
