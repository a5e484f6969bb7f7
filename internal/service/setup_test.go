package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"health-diary/internal/access"
	"health-diary/internal/core/blob"
	"health-diary/internal/core/crypto"
	"health-diary/internal/core/database"
	"health-diary/internal/domain"
	"health-diary/internal/feature"
	"health-diary/internal/repo"
)

type fixture struct {
	db     *gorm.DB
	crypto *crypto.Service
	users  *UserService
	cals   *CalendarService
	regs   *Registrations
	engine *access.Engine
	blobs  *blob.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(feature.Models()...))

	c := crypto.NewEphemeral()
	mem := blob.NewMemory()
	userRepo := repo.NewUserRepo(db)
	users := NewUserService(userRepo, c, WithBlobStore(mem))
	engine := access.New(users, nil)
	return &fixture{
		db:     db,
		crypto: c,
		users:  users,
		cals:   NewCalendarService(repo.NewCalendarRepo(db), userRepo, c, engine, WithBlobStore(mem)),
		regs:   NewRegistrations(db, c, WithBlobStore(mem)),
		engine: engine,
		blobs:  mem,
	}
}

func newUser(email string, roles ...domain.Role) domain.NewUser {
	return domain.NewUser{
		Email:     email,
		FirstName: "Kari",
		LastName:  "Nordmann",
		Password:  "Passw0rdOK",
		Pin:       "1234",
		Roles:     roles,
	}
}

func (f *fixture) mustUser(t *testing.T, email string, roles ...domain.Role) *domain.Principal {
	t.Helper()
	id, err := f.users.CreateUser(context.Background(), newUser(email, roles...))
	require.NoError(t, err)
	if len(roles) == 0 {
		roles = domain.Roles{domain.RoleBasic}
	}
	return &domain.Principal{ID: id, Roles: roles}
}

func (f *fixture) mustCalendar(t *testing.T, p *domain.Principal, name string) int64 {
	t.Helper()
	id, err := f.cals.CreateCalendar(context.Background(), p, name)
	require.NoError(t, err)
	return id
}
