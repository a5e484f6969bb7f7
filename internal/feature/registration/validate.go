package registration

import (
	"unicode/utf8"

	"health-diary/internal/domain"
	"health-diary/pkg/utils"
)

func tooLong(s string, limit int) bool { return utf8.RuneCountInString(s) > limit }

func (a *Absence) Validate() error {
	if tooLong(a.Note, 512) {
		return domain.Validation("note must be at most 512 characters")
	}
	if a.Timestamp.IsZero() {
		return domain.Validation("timestamp is required")
	}
	return nil
}

func (t *Typed) Validate() error {
	switch {
	case utils.Blank(t.Type):
		return domain.Validation("type is required")
	case tooLong(t.Type, 256):
		return domain.Validation("type must be at most 256 characters")
	case !t.Level.Valid():
		return domain.Validation("level must be one of LOW, MODERATE, HIGH")
	case tooLong(t.Note, 512):
		return domain.Validation("note must be at most 512 characters")
	case t.Timestamp.IsZero():
		return domain.Validation("timestamp is required")
	}
	return nil
}

func (e *Eczema) Validate() error {
	if err := e.Typed.Validate(); err != nil {
		return err
	}
	switch e.BodySide {
	case BodySideFront, BodySideBack:
	default:
		return domain.Validation("invalid bodySide %q", e.BodySide)
	}
	switch e.BodyPortion {
	case BodyPortionLeft, BodyPortionMiddle, BodyPortionRight:
	default:
		return domain.Validation("invalid bodyPortion %q", e.BodyPortion)
	}
	switch e.BodyPart {
	case BodyPartHead, BodyPartNeck, BodyPartShoulder, BodyPartArm, BodyPartElbow, BodyPartHand,
		BodyPartChest, BodyPartStomach, BodyPartUpperSpine, BodyPartLowerSpine, BodyPartHip,
		BodyPartThigh, BodyPartKnee, BodyPartLeg, BodyPartFoot:
	default:
		return domain.Validation("invalid bodyPart %q", e.BodyPart)
	}
	return nil
}

func (s *Sleep) Validate() error {
	if s.FromTimestamp.IsZero() || s.ToTimestamp.IsZero() {
		return domain.Validation("fromTimestamp and toTimestamp are required")
	}
	if s.ToTimestamp.Before(s.FromTimestamp) {
		return domain.Validation("toTimestamp must not be before fromTimestamp")
	}
	return nil
}

func (r *TestResult) Validate() error {
	switch {
	case utils.Blank(r.Test), utils.Blank(r.RefValue), utils.Blank(r.Value):
		return domain.Validation("test, refValue and value are required")
	case tooLong(r.Test, 256), tooLong(r.RefValue, 256), tooLong(r.Value, 256):
		return domain.Validation("test, refValue and value must be at most 256 characters")
	case r.Timestamp.IsZero():
		return domain.Validation("timestamp is required")
	}
	return nil
}

func (m *Measurement) Validate() error {
	if m.WeightGrams < 0 || m.WeightKilos < 0 || m.HeightCm < 0 {
		return domain.Validation("measurements must not be negative")
	}
	if m.Timestamp.IsZero() {
		return domain.Validation("timestamp is required")
	}
	return nil
}

func (i *Image) Validate() error {
	switch {
	case utils.Blank(i.FileName):
		return domain.Validation("fileName is required")
	case tooLong(i.FileName, 64):
		return domain.Validation("fileName must be at most 64 characters")
	case utils.Blank(i.FileType):
		return domain.Validation("fileType is required")
	case tooLong(i.FileType, 8):
		return domain.Validation("fileType must be at most 8 characters")
	case len(i.Data) == 0:
		return domain.Validation("data is required")
	case i.Timestamp.IsZero():
		return domain.Validation("timestamp is required")
	}
	return nil
}
