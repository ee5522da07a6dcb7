// Package coordination owns the appointment lifecycle: creation with
// candidate dates and invite codes, joining, voting and status changes.
// Every multi-row write runs in one transaction, and join-time checks run
// under a row lock on the appointment so concurrent joiners cannot push it
// past its cap or join twice.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"yakssok-api/internal/invite"
	"yakssok-api/internal/model"
	"yakssok-api/internal/store"
)

const DefaultMaxCodeAttempts = 5

// Column limits of the appointments table.
const (
	MaxNameLength      = 255
	MaxParticipantsCap = math.MaxInt32
)

// Repository is the persistence the service needs. *store.Store and
// *memstore.Store both satisfy it.
type Repository interface {
	store.Querier
	InTx(ctx context.Context, fn func(q store.Querier) error) error
}

type Service struct {
	repo        Repository
	newCode     func() (string, error)
	maxAttempts int
}

type Option func(*Service)

// WithCodeGenerator replaces the invite code source.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.newCode = fn }
}

// WithMaxCodeAttempts bounds how many invite codes CreateAppointment tries.
func WithMaxCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		newCode:     invite.Generator(invite.DefaultLength),
		maxAttempts: DefaultMaxCodeAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateInput carries exactly one date shape: CandidateDates, or StartDate
// and EndDate.
type CreateInput struct {
	Name            string
	CreatorID       string
	MaxParticipants *int
	CandidateDates  []time.Time
	StartDate       *time.Time
	EndDate         *time.Time
}

func (in CreateInput) dates() ([]time.Time, error) {
	hasList := len(in.CandidateDates) > 0
	hasRange := in.StartDate != nil || in.EndDate != nil

	switch {
	case hasList && hasRange:
		return nil, fmt.Errorf("%w: give candidate_dates or start_date/end_date, not both", ErrInvalidInput)
	case hasList:
		return Normalize(in.CandidateDates), nil
	case in.StartDate != nil && in.EndDate != nil:
		return ExpandRange(*in.StartDate, *in.EndDate)
	case hasRange:
		return nil, fmt.Errorf("%w: start_date and end_date go together", ErrInvalidInput)
	}
	return nil, fmt.Errorf("%w: at least one candidate date is required", ErrInvalidInput)
}

// errCodeTaken makes a create attempt roll back and draw a new code.
var errCodeTaken = errors.New("invite code taken")

// CreateAppointment stores the appointment, its candidate dates and the
// creator's participation in one transaction. Invite code collisions, found
// either by the pre-check or by the unique constraint, cost one attempt.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (*model.AppointmentDetail, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name is longer than %d characters", ErrInvalidInput, MaxNameLength)
	}
	if in.CreatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	// the creator takes the first seat
	if in.MaxParticipants != nil && (*in.MaxParticipants < 1 || *in.MaxParticipants > MaxParticipantsCap) {
		return nil, fmt.Errorf("%w: max_participants must be between 1 and %d", ErrInvalidInput, MaxParticipantsCap)
	}
	dates, err := in.dates()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generating invite code: %w", err)
		}

		detail, err := s.create(ctx, name, in, code, dates)
		if errors.Is(err, errCodeTaken) || store.IsUniqueViolation(err, store.ConstraintInviteCode) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return detail, nil
	}
	return nil, ErrInviteCodeExhausted
}

func (s *Service) create(ctx context.Context, name string, in CreateInput, code string, dates []time.Time) (*model.AppointmentDetail, error) {
	var detail model.AppointmentDetail
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		taken, err := q.InviteCodeExists(ctx, code)
		if err != nil {
			return fmt.Errorf("checking invite code: %w", err)
		}
		if taken {
			return errCodeTaken
		}

		a := model.Appointment{
			Name:            name,
			CreatorID:       in.CreatorID,
			MaxParticipants: in.MaxParticipants,
			Status:          model.StatusVoting,
			InviteCode:      code,
		}
		if err := q.InsertAppointment(ctx, &a); err != nil {
			return err
		}

		stored, err := q.InsertCandidateDates(ctx, a.ID, dates)
		if err != nil {
			return err
		}

		creator := model.Participation{UserID: in.CreatorID, AppointmentID: a.ID, Status: model.Attending}
		if err := q.InsertParticipation(ctx, &creator); err != nil {
			return err
		}

		detail = model.AppointmentDetail{Appointment: a, CandidateDates: stored}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func normalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code, invite.WellFormed(code)
}

// AppointmentByInviteCode resolves a code to the appointment and its dates.
// Codes that were never issued give ErrNotFound.
func (s *Service) AppointmentByInviteCode(ctx context.Context, code string) (*model.AppointmentDetail, error) {
	code, ok := normalizeCode(code)
	if !ok {
		return nil, ErrNotFound
	}
	a, err := s.repo.AppointmentByInviteCode(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	dates, err := s.repo.CandidateDates(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("loading candidate dates: %w", err)
	}
	return &model.AppointmentDetail{Appointment: *a, CandidateDates: dates}, nil
}

// JoinAppointment admits userID. Checks run in order, first failure wins:
// not found, not joinable, already joined, capacity.
func (s *Service) JoinAppointment(ctx context.Context, code, userID string) (*model.Participation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	code, ok := normalizeCode(code)
	if !ok {
		return nil, ErrNotFound
	}

	var p model.Participation
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		a, err := q.LockAppointmentByInviteCode(ctx, code)
		if err != nil {
			return notFound(err)
		}
		if a.Status != model.StatusVoting {
			return ErrNotJoinable
		}

		_, err = q.ParticipationFor(ctx, a.ID, userID)
		switch {
		case err == nil:
			return ErrAlreadyJoined
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("checking participation: %w", err)
		}

		if a.MaxParticipants != nil {
			n, err := q.CountParticipations(ctx, a.ID)
			if err != nil {
				return fmt.Errorf("counting participations: %w", err)
			}
			if n >= *a.MaxParticipants {
				return ErrCapacityExceeded
			}
		}

		p = model.Participation{UserID: userID, AppointmentID: a.ID, Status: model.Attending}
		if err := q.InsertParticipation(ctx, &p); err != nil {
			if store.IsUniqueViolation(err, store.ConstraintParticipant) {
				return ErrAlreadyJoined
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CandidateDates lists an appointment's dates in ascending order.
func (s *Service) CandidateDates(ctx context.Context, appointmentID int64) ([]model.AppointmentDate, error) {
	return s.repo.CandidateDates(ctx, appointmentID)
}

func (s *Service) CandidateDatesByInviteCode(ctx context.Context, code string) ([]model.AppointmentDate, error) {
	d, err := s.AppointmentByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return d.CandidateDates, nil
}

// Participations lists every participation of the appointment. Only
// participants may look.
func (s *Service) Participations(ctx context.Context, code, userID string) ([]model.Participation, error) {
	code, ok := normalizeCode(code)
	if !ok {
		return nil, ErrNotFound
	}
	a, err := s.repo.AppointmentByInviteCode(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := s.repo.ParticipationFor(ctx, a.ID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}
	return s.repo.Participations(ctx, a.ID)
}

// ParticipationUpdate changes the non-nil fields only.
type ParticipationUpdate struct {
	Status         *model.AttendanceStatus
	AvailableSlots *string
}

// UpdateParticipation records a participant's vote while the appointment is
// still VOTING. AvailableSlots is stored verbatim.
func (s *Service) UpdateParticipation(ctx context.Context, code, userID string, upd ParticipationUpdate) (*model.Participation, error) {
	if upd.Status == nil && upd.AvailableSlots == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown attendance status %q", ErrInvalidInput, *upd.Status)
	}
	code, ok := normalizeCode(code)
	if !ok {
		return nil, ErrNotFound
	}

	var p *model.Participation
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		a, err := q.LockAppointmentByInviteCode(ctx, code)
		if err != nil {
			return notFound(err)
		}
		if a.Status != model.StatusVoting {
			return ErrNotJoinable
		}

		p, err = q.ParticipationFor(ctx, a.ID, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotParticipant
		}
		if err != nil {
			return err
		}

		if upd.Status != nil {
			p.Status = *upd.Status
		}
		if upd.AvailableSlots != nil {
			p.AvailableSlots = upd.AvailableSlots
		}
		return q.UpdateParticipation(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetStatus closes voting. Only the creator may move a VOTING appointment to
// CONFIRMED or CANCELED; every other move is ErrInvalidTransition.
func (s *Service) SetStatus(ctx context.Context, code, userID string, to model.AppointmentStatus) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	code, ok := normalizeCode(code)
	if !ok {
		return nil, ErrNotFound
	}

	var a *model.Appointment
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		var err error
		a, err = q.LockAppointmentByInviteCode(ctx, code)
		if err != nil {
			return notFound(err)
		}
		if a.CreatorID != userID {
			return ErrForbidden
		}
		if a.Status != model.StatusVoting || to == model.StatusVoting {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, to)
		}
		if err := q.UpdateAppointmentStatus(ctx, a.ID, to); err != nil {
			return err
		}
		a.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
