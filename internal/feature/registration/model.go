// Package registration 日历下的各类健康登记。
package registration

import "time"

type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
)

func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelModerate, LevelHigh:
		return true
	}
	return false
}

// Record 所有登记类型的公共行为；实现都在指针上
type Record interface {
	GetID() int64
	SetID(id int64)
	GetCalendarID() int64
	SetCalendarID(id int64)
	Validate() error
	// Unique 同一日历内需唯一的列；nil 表示不限制，空 map 表示每个日历只能有一条
	Unique() map[string]any
}

// Ptr 泛型约束：*T 实现 Record
type Ptr[T any] interface {
	*T
	Record
}

type Scoped struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CalendarID int64 `gorm:"not null;index" json:"calendar_id"`
}

func (s *Scoped) GetID() int64           { return s.ID }
func (s *Scoped) SetID(id int64)         { s.ID = id }
func (s *Scoped) GetCalendarID() int64   { return s.CalendarID }
func (s *Scoped) SetCalendarID(id int64) { s.CalendarID = id }
func (s *Scoped) Unique() map[string]any { return nil }

// Typed 类型 + 等级 + 备注；(type, calendar) 唯一
type Typed struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"size:256;not null;index:,unique,composite:type_calendar" json:"type"`
	Level      Level     `gorm:"size:16;not null" json:"level"`
	Note       string    `gorm:"size:512" json:"note"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
	CalendarID int64     `gorm:"not null;index:,unique,composite:type_calendar" json:"calendar_id"`
}

func (t *Typed) GetID() int64           { return t.ID }
func (t *Typed) SetID(id int64)         { t.ID = id }
func (t *Typed) GetCalendarID() int64   { return t.CalendarID }
func (t *Typed) SetCalendarID(id int64) { t.CalendarID = id }
func (t *Typed) Unique() map[string]any { return map[string]any{"type": t.Type} }

type Absence struct {
	Scoped
	Note      string    `gorm:"size:512" json:"note"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

func (Absence) TableName() string { return "absences" }

type Animal struct{ Typed }

func (Animal) TableName() string { return "animals" }

type Food struct{ Typed }

func (Food) TableName() string { return "foods" }

type Pollen struct{ Typed }

func (Pollen) TableName() string { return "pollens" }

type Symptom struct{ Typed }

func (Symptom) TableName() string { return "symptoms" }

type Humor struct{ Typed }

func (Humor) TableName() string { return "humors" }

type Treatment struct{ Typed }

func (Treatment) TableName() string { return "treatments" }

type BodySide string

const (
	BodySideFront BodySide = "FRONT"
	BodySideBack  BodySide = "BACK"
)

type BodyPortion string

const (
	BodyPortionLeft   BodyPortion = "LEFT"
	BodyPortionMiddle BodyPortion = "MIDDLE"
	BodyPortionRight  BodyPortion = "RIGHT"
)

type BodyPart string

const (
	BodyPartHead       BodyPart = "HEAD"
	BodyPartNeck       BodyPart = "NECK"
	BodyPartShoulder   BodyPart = "SHOULDER"
	BodyPartArm        BodyPart = "ARM"
	BodyPartElbow      BodyPart = "ELBOW"
	BodyPartHand       BodyPart = "HAND"
	BodyPartChest      BodyPart = "CHEST"
	BodyPartStomach    BodyPart = "STOMACH"
	BodyPartUpperSpine BodyPart = "UPPER_SPINE"
	BodyPartLowerSpine BodyPart = "LOWER_SPINE"
	BodyPartHip        BodyPart = "HIP"
	BodyPartThigh      BodyPart = "THIGH"
	BodyPartKnee       BodyPart = "KNEE"
	BodyPartLeg        BodyPart = "LEG"
	BodyPartFoot       BodyPart = "FOOT"
)

type Eczema struct {
	Typed
	BodySide    BodySide    `gorm:"size:16;not null" json:"bodySide"`
	BodyPortion BodyPortion `gorm:"size:16;not null" json:"bodyPortion"`
	BodyPart    BodyPart    `gorm:"size:32;not null" json:"bodyPart"`
}

func (Eczema) TableName() string { return "eczemas" }

type Sleep struct {
	Scoped
	FromTimestamp time.Time `gorm:"not null" json:"fromTimestamp"`
	ToTimestamp   time.Time `gorm:"not null" json:"toTimestamp"`
}

func (Sleep) TableName() string { return "sleeps" }

type TestResult struct {
	Scoped
	Test      string    `gorm:"size:256;not null" json:"test"`
	RefValue  string    `gorm:"size:256;not null" json:"refValue"`
	Value     string    `gorm:"size:256;not null" json:"value"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

func (TestResult) TableName() string { return "test_results" }

// Measurement 每个日历一条（体重 / 身高）
type Measurement struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WeightGrams int       `gorm:"not null" json:"weightGrams"`
	WeightKilos int       `gorm:"not null" json:"weightKilos"`
	HeightCm    int       `gorm:"not null" json:"heightCm"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
	CalendarID  int64     `gorm:"not null;uniqueIndex" json:"calendar_id"`
}

func (Measurement) TableName() string { return "measurements" }

func (m *Measurement) GetID() int64           { return m.ID }
func (m *Measurement) SetID(id int64)         { m.ID = id }
func (m *Measurement) GetCalendarID() int64   { return m.CalendarID }
func (m *Measurement) SetCalendarID(id int64) { m.CalendarID = id }
func (m *Measurement) Unique() map[string]any { return map[string]any{} }

// Image Data 入库前加密；配置了对象存储时密文放在 ObjectKey 指向的对象里
type Image struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName   string    `gorm:"size:64;not null;index:,unique,composite:name_calendar" json:"fileName"`
	FileType   string    `gorm:"size:8;not null" json:"fileType"`
	Data       []byte    `json:"data"`
	ObjectKey  string    `gorm:"size:255" json:"-"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
	CalendarID int64     `gorm:"not null;index:,unique,composite:name_calendar" json:"calendar_id"`
}

func (Image) TableName() string { return "images" }

func (i *Image) GetID() int64           { return i.ID }
func (i *Image) SetID(id int64)         { i.ID = id }
func (i *Image) GetCalendarID() int64   { return i.CalendarID }
func (i *Image) SetCalendarID(id int64) { i.CalendarID = id }
func (i *Image) Unique() map[string]any { return map[string]any{"file_name": i.FileName} }

// Models 迁移与级联删除用
func Models() []any {
	return []any{
		&Absence{}, &Animal{}, &Food{}, &Pollen{}, &Symptom{}, &Humor{}, &Treatment{},
		&Eczema{}, &Sleep{}, &TestResult{}, &Measurement{}, &Image{},
	}
}
