package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"health-diary/internal/core/crypto"
	"health-diary/internal/domain"
	"health-diary/internal/feature/registration"
	"health-diary/internal/repo"
)

// Codec 持久化前后对记录做变换（加密 / 外部存储）
type Codec[P any] interface {
	Seal(ctx context.Context, p P) error
	Open(ctx context.Context, p P) error
	// Discard 行被删除或替换后清理外部数据
	Discard(ctx context.Context, p P)
	// Reseal 换成当前密钥版本；cols 为需要回写的列
	Reseal(ctx context.Context, p P) (changed bool, cols map[string]any, err error)
}

type RegistrationService[T any, P registration.Ptr[T]] struct {
	name  string
	repo  *repo.RegistrationRepo[T, P]
	codec Codec[P]
	deps
}

func NewRegistrationService[T any, P registration.Ptr[T]](name string, r *repo.RegistrationRepo[T, P], codec Codec[P], opts ...Option) *RegistrationService[T, P] {
	return &RegistrationService[T, P]{name: name, repo: r, codec: codec, deps: newDeps(opts)}
}

func (s *RegistrationService[T, P]) Name() string { return s.name }

// Create 校验全部通过后才写入
func (s *RegistrationService[T, P]) Create(ctx context.Context, calendarID int64, p P) (int64, error) {
	if p.GetID() != 0 {
		return 0, domain.Validation("id must not be supplied on create")
	}
	p.SetCalendarID(calendarID)
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if s.codec != nil {
		if err := s.codec.Seal(ctx, p); err != nil {
			return 0, err
		}
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if s.codec != nil {
			s.codec.Discard(ctx, p)
		}
		return 0, err
	}
	return p.GetID(), nil
}

func (s *RegistrationService[T, P]) Update(ctx context.Context, calendarID, id int64, p P) error {
	if p.GetID() != 0 && p.GetID() != id {
		return domain.Validation("id in body does not match path")
	}
	p.SetID(id)
	p.SetCalendarID(calendarID)
	if err := p.Validate(); err != nil {
		return err
	}
	old, err := s.repo.Get(ctx, calendarID, id)
	if err != nil {
		return err
	}
	if old == nil {
		return domain.NotFound("%s %d not found", s.name, id)
	}
	if s.codec != nil {
		if err := s.codec.Seal(ctx, p); err != nil {
			return err
		}
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if s.codec != nil {
			s.codec.Discard(ctx, p)
		}
		return err
	}
	if s.codec != nil {
		s.codec.Discard(ctx, old)
	}
	return nil
}

func (s *RegistrationService[T, P]) Get(ctx context.Context, calendarID, id int64) (P, error) {
	p, err := s.repo.Get(ctx, calendarID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NotFound("%s %d not found", s.name, id)
	}
	if s.codec != nil {
		if err := s.codec.Open(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *RegistrationService[T, P]) ListByCalendar(ctx context.Context, calendarID int64, offset, limit int) (domain.Page[T], error) {
	offset, limit = page(offset, limit)
	items, total, err := s.repo.List(ctx, calendarID, offset, limit)
	if err != nil {
		return domain.Page[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	if s.codec != nil {
		for i := range items {
			if err := s.codec.Open(ctx, P(&items[i])); err != nil {
				return domain.Page[T]{}, err
			}
		}
	}
	return domain.Page[T]{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

func (s *RegistrationService[T, P]) Delete(ctx context.Context, calendarID, id int64) error {
	old, err := s.repo.Delete(ctx, calendarID, id)
	if err != nil {
		return err
	}
	if s.codec != nil {
		s.codec.Discard(ctx, old)
	}
	return nil
}

// RotateEncryption 只有带 codec 的类型有密文
func (s *RegistrationService[T, P]) RotateEncryption(ctx context.Context) (int, error) {
	if s.codec == nil {
		return 0, nil
	}
	n := 0
	err := s.repo.EachBatch(ctx, 50, func(batch []T) error {
		for i := range batch {
			p := P(&batch[i])
			changed, cols, err := s.codec.Reseal(ctx, p)
			if err != nil {
				return err
			}
			if len(cols) > 0 {
				if err := s.repo.UpdateColumns(ctx, p, cols); err != nil {
					return err
				}
			}
			if changed {
				n++
			}
		}
		return nil
	})
	if err == nil && n > 0 {
		s.log.Info("registrations re-encrypted", zap.String("resource", s.name), zap.Int("rows", n))
	}
	return n, err
}

type (
	AbsenceService     = RegistrationService[registration.Absence, *registration.Absence]
	AnimalService      = RegistrationService[registration.Animal, *registration.Animal]
	FoodService        = RegistrationService[registration.Food, *registration.Food]
	PollenService      = RegistrationService[registration.Pollen, *registration.Pollen]
	SymptomService     = RegistrationService[registration.Symptom, *registration.Symptom]
	HumorService       = RegistrationService[registration.Humor, *registration.Humor]
	TreatmentService   = RegistrationService[registration.Treatment, *registration.Treatment]
	EczemaService      = RegistrationService[registration.Eczema, *registration.Eczema]
	SleepService       = RegistrationService[registration.Sleep, *registration.Sleep]
	TestResultService  = RegistrationService[registration.TestResult, *registration.TestResult]
	MeasurementService = RegistrationService[registration.Measurement, *registration.Measurement]
	ImageService       = RegistrationService[registration.Image, *registration.Image]
)

// Registrations 十二类登记服务
type Registrations struct {
	Absences     *AbsenceService
	Animals      *AnimalService
	Foods        *FoodService
	Pollens      *PollenService
	Symptoms     *SymptomService
	Humors       *HumorService
	Treatments   *TreatmentService
	Eczemas      *EczemaService
	Sleeps       *SleepService
	TestResults  *TestResultService
	Measurements *MeasurementService
	Images       *ImageService
}

func newPlain[T any, P registration.Ptr[T]](db *gorm.DB, name string, opts []Option) *RegistrationService[T, P] {
	return NewRegistrationService[T, P](name, repo.NewRegistrationRepo[T, P](db, name), nil, opts...)
}

func NewRegistrations(db *gorm.DB, c *crypto.Service, opts ...Option) *Registrations {
	d := newDeps(opts)
	return &Registrations{
		Absences:     newPlain[registration.Absence](db, "absence", opts),
		Animals:      newPlain[registration.Animal](db, "animal", opts),
		Foods:        newPlain[registration.Food](db, "food", opts),
		Pollens:      newPlain[registration.Pollen](db, "pollen", opts),
		Symptoms:     newPlain[registration.Symptom](db, "symptom", opts),
		Humors:       newPlain[registration.Humor](db, "humor", opts),
		Treatments:   newPlain[registration.Treatment](db, "treatment", opts),
		Eczemas:      newPlain[registration.Eczema](db, "eczema", opts),
		Sleeps:       newPlain[registration.Sleep](db, "sleep", opts),
		TestResults:  newPlain[registration.TestResult](db, "test result", opts),
		Measurements: newPlain[registration.Measurement](db, "measurement", opts),
		Images: NewRegistrationService[registration.Image](
			"image",
			repo.NewRegistrationRepo[registration.Image](db, "image"),
			Codec[*registration.Image](NewImageCodec(c, d.blobs, d.log)),
			opts...,
		),
	}
}

type rotator interface {
	Name() string
	RotateEncryption(ctx context.Context) (int, error)
}

// RotateEncryption 只有图片带密文；返回每类改写的行数
func (r *Registrations) RotateEncryption(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, s := range []rotator{r.Images} {
		n, err := s.RotateEncryption(ctx)
		if err != nil {
			return out, err
		}
		out[s.Name()] = n
	}
	return out, nil
}
