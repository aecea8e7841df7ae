package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

// ProfileInput is a self-service edit. Nil fields keep their stored value.
type ProfileInput struct {
	FullName   *string `json:"full_name"`
	StudentID  *string `json:"student_id"`
	Department *string `json:"department"`
	Semester   *int    `json:"semester"`
	Phone      *string `json:"phone"`
}

// profileFields are the columns a user may change on their own profile.
type profileFields struct {
	FullName   string `json:"full_name" validate:"notblank,max=120"`
	StudentID  string `json:"student_id" validate:"omitempty,max=32"`
	Department string `json:"department" validate:"omitempty,max=120"`
	Semester   int    `json:"semester" validate:"omitempty,min=1,max=12"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
}

// ProfileService serves a user's own profile. Every call is keyed by the
// session, so nobody can read or edit another user's profile through it.
type ProfileService struct {
	store    ledger.ProfileStore
	validate *validator.Validate
	trans    ut.Translator
}

func NewProfileService(store ledger.ProfileStore) *ProfileService {
	v, trans := newValidator()
	return &ProfileService{store: store, validate: v, trans: trans}
}

// Get returns the session user's profile.
func (s *ProfileService) Get(ctx context.Context, session core.Session) (core.Profile, error) {
	if session.UserID == "" {
		return core.Profile{}, ErrForbidden
	}
	p, err := s.store.GetProfile(ctx, session.UserID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// UpdateOwn applies in to the session user's profile. Role and email are
// never changed here.
func (s *ProfileService) UpdateOwn(ctx context.Context, session core.Session, in ProfileInput) (core.Profile, error) {
	current, err := s.Get(ctx, session)
	if err != nil {
		return core.Profile{}, err
	}

	fields := in.applyTo(profileFields{
		FullName:   current.FullName,
		StudentID:  current.StudentID,
		Department: current.Department,
		Semester:   current.Semester,
		Phone:      current.Phone,
	})
	if err := s.validate.StructCtx(ctx, fields); err != nil {
		return core.Profile{}, invalidInput(err, s.trans)
	}

	next := current
	next.FullName = fields.FullName
	next.StudentID = fields.StudentID
	next.Department = fields.Department
	next.Semester = fields.Semester
	next.Phone = fields.Phone

	updated, err := s.store.UpdateProfile(ctx, next)
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	slog.InfoContext(ctx, "Profile updated", "user_id", updated.UserID)
	return updated, nil
}

func (in ProfileInput) applyTo(f profileFields) profileFields {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&f.FullName, in.FullName)
	set(&f.StudentID, in.StudentID)
	set(&f.Department, in.Department)
	set(&f.Phone, in.Phone)
	if in.Semester != nil {
		f.Semester = *in.Semester
	}
	return f
}
