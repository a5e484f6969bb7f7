package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-diary/internal/core/crypto"
	"health-diary/internal/domain"
	"health-diary/internal/feature/registration"
	"health-diary/internal/repo"
)

var ts = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func TestRegistration_CRUDScopedByCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustUser(t, "a@moo.no", domain.RoleFamily)
	c1 := f.mustCalendar(t, a, "one")
	c2 := f.mustCalendar(t, a, "two")

	svc := f.regs.Symptoms
	id, err := svc.Create(ctx, c1, &registration.Symptom{Typed: registration.Typed{Type: "cough", Level: registration.LevelLow, Timestamp: ts}})
	require.NoError(t, err)

	got, err := svc.Get(ctx, c1, id)
	require.NoError(t, err)
	assert.Equal(t, "cough", got.Type)
	assert.Equal(t, c1, got.CalendarID)

	_, err = svc.Get(ctx, c2, id)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "id from another calendar is not found")
	assert.True(t, errors.Is(svc.Delete(ctx, c2, id), domain.ErrNotFound))
	err = svc.Update(ctx, c2, id, &registration.Symptom{Typed: registration.Typed{Type: "x", Level: registration.LevelLow, Timestamp: ts}})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	upd := &registration.Symptom{Typed: registration.Typed{Type: "cough", Level: registration.LevelHigh, Note: "worse", Timestamp: ts}}
	require.NoError(t, svc.Update(ctx, c1, id, upd))
	got, err = svc.Get(ctx, c1, id)
	require.NoError(t, err)
	assert.Equal(t, registration.LevelHigh, got.Level)
	assert.Equal(t, "worse", got.Note)

	pg, err := svc.ListByCalendar(ctx, c1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pg.Total)
	assert.Equal(t, 20, pg.Limit)
	pg, err = svc.ListByCalendar(ctx, c2, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pg.Items)

	require.NoError(t, svc.Delete(ctx, c1, id))
	_, err = svc.Get(ctx, c1, id)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistration_IDRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustUser(t, "a@moo.no")
	c := f.mustCalendar(t, p, "c")

	_, err := f.regs.Absences.Create(ctx, c, &registration.Absence{Scoped: registration.Scoped{ID: 7}, Timestamp: ts})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	id, err := f.regs.Absences.Create(ctx, c, &registration.Absence{Note: "sick", Timestamp: ts})
	require.NoError(t, err)
	err = f.regs.Absences.Update(ctx, c, id, &registration.Absence{Scoped: registration.Scoped{ID: id + 1}, Timestamp: ts})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.regs.Absences.Create(ctx, c, &registration.Absence{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	// 缺勤不限制重复
	_, err = f.regs.Absences.Create(ctx, c, &registration.Absence{Note: "sick", Timestamp: ts})
	assert.NoError(t, err)
}

func TestRegistration_Uniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustUser(t, "a@moo.no", domain.RoleFamily)
	c1 := f.mustCalendar(t, p, "one")
	c2 := f.mustCalendar(t, p, "two")

	pollen := func(typ string) *registration.Pollen {
		return &registration.Pollen{Typed: registration.Typed{Type: typ, Level: registration.LevelModerate, Timestamp: ts}}
	}
	_, err := f.regs.Pollens.Create(ctx, c1, pollen("birch"))
	require.NoError(t, err)
	_, err = f.regs.Pollens.Create(ctx, c1, pollen("birch"))
	assert.True(t, errors.Is(err, domain.ErrConflict))
	_, err = f.regs.Pollens.Create(ctx, c2, pollen("birch"))
	assert.NoError(t, err, "same type in another calendar")

	grass, err := f.regs.Pollens.Create(ctx, c1, pollen("grass"))
	require.NoError(t, err)
	err = f.regs.Pollens.Update(ctx, c1, grass, pollen("birch"))
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, f.regs.Pollens.Update(ctx, c1, grass, pollen("grass")), "updating itself is not a conflict")

	m := &registration.Measurement{WeightKilos: 10, HeightCm: 80, Timestamp: ts}
	_, err = f.regs.Measurements.Create(ctx, c1, m)
	require.NoError(t, err)
	_, err = f.regs.Measurements.Create(ctx, c1, &registration.Measurement{WeightKilos: 11, Timestamp: ts})
	assert.True(t, errors.Is(err, domain.ErrConflict), "one measurement per calendar")
}

func TestRegistration_UniqueIndexBackstop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustUser(t, "a@moo.no")
	c := f.mustCalendar(t, p, "c")

	r := repo.NewRegistrationRepo[registration.Treatment](f.db, "treatment")
	first := &registration.Treatment{Typed: registration.Typed{Type: "cream", Level: registration.LevelLow, Timestamp: ts, CalendarID: c}}
	require.NoError(t, r.Create(ctx, first))

	// 绕过预检查直接插入，由唯一索引拒绝
	dup := &registration.Treatment{Typed: registration.Typed{Type: "cream", Level: registration.LevelLow, Timestamp: ts, CalendarID: c}}
	err := f.db.Create(dup).Error
	require.Error(t, err)
}

func TestRegistration_EczemaAndSleep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustUser(t, "a@moo.no")
	c := f.mustCalendar(t, p, "c")

	e := &registration.Eczema{
		Typed:    registration.Typed{Type: "dry", Level: registration.LevelHigh, Timestamp: ts},
		BodySide: registration.BodySideFront, BodyPortion: registration.BodyPortionLeft, BodyPart: registration.BodyPartHand,
	}
	id, err := f.regs.Eczemas.Create(ctx, c, e)
	require.NoError(t, err)
	got, err := f.regs.Eczemas.Get(ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, registration.BodyPartHand, got.BodyPart)

	_, err = f.regs.Sleeps.Create(ctx, c, &registration.Sleep{FromTimestamp: ts, ToTimestamp: ts.Add(-time.Hour)})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.regs.Sleeps.Create(ctx, c, &registration.Sleep{FromTimestamp: ts, ToTimestamp: ts.Add(8 * time.Hour)})
	assert.NoError(t, err)
}

func TestImages_EncryptedInObjectStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustUser(t, "a@moo.no")
	c := f.mustCalendar(t, p, "c")

	payload := []byte("\x89PNG fake image bytes")
	id, err := f.regs.Images.Create(ctx, c, &registration.Image{FileName: "rash.png", FileType: "png", Data: payload, Timestamp: ts})
	require.NoError(t, err)

	var row registration.Image
	require.NoError(t, f.db.First(&row, id).Error)
	assert.Empty(t, row.Data)
	assert.Contains(t, row.ObjectKey, "images/")
	stored, err := f.blobs.Get(ctx, row.ObjectKey)
	require.NoError(t, err)
	assert.NotEqual(t, payload, stored)

	got, err := f.regs.Images.Get(ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)

	pg, err := f.regs.Images.ListByCalendar(ctx, c, 0, 10)
	require.NoError(t, err)
	require.Len(t, pg.Items, 1)
	assert.Equal(t, payload, pg.Items[0].Data, "list decrypts too")

	_, err = f.regs.Images.Create(ctx, c, &registration.Image{FileName: "rash.png", FileType: "png", Data: payload, Timestamp: ts})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, 1, f.blobs.Len(), "rejected upload leaves no object")

	require.NoError(t, f.regs.Images.Update(ctx, c, id, &registration.Image{FileName: "rash.png", FileType: "png", Data: []byte("v2"), Timestamp: ts}))
	assert.Equal(t, 1, f.blobs.Len(), "replaced object is removed")
	got, err = f.regs.Images.Get(ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Data)

	require.NoError(t, f.regs.Images.Delete(ctx, c, id))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestImages_InlineAndForeignKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustUser(t, "a@moo.no")
	c := f.mustCalendar(t, p, "c")

	inline := NewRegistrationService[registration.Image]("image",
		repo.NewRegistrationRepo[registration.Image](f.db, "image"),
		Codec[*registration.Image](NewImageCodec(f.crypto, nil, nil)))
	id, err := inline.Create(ctx, c, &registration.Image{FileName: "a.png", FileType: "png", Data: []byte("abc"), Timestamp: ts})
	require.NoError(t, err)

	var row registration.Image
	require.NoError(t, f.db.First(&row, id).Error)
	assert.NotEmpty(t, row.Data)
	assert.NotEqual(t, []byte("abc"), row.Data)

	got, err := inline.Get(ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got.Data)

	foreign := NewRegistrationService[registration.Image]("image",
		repo.NewRegistrationRepo[registration.Image](f.db, "image"),
		Codec[*registration.Image](NewImageCodec(crypto.NewEphemeral(), nil, nil)))
	_, err = foreign.Get(ctx, c, id)
	assert.True(t, errors.Is(err, crypto.ErrDecryption))
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	_, err = foreign.ListByCalendar(ctx, c, 0, 10)
	assert.True(t, errors.Is(err, crypto.ErrDecryption))

	n, err := inline.RotateEncryption(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
