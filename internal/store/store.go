// Package store is the Postgres persistence gateway.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"yakssok-api/internal/model"
)

// constraint names from migrations/001_init.sql
const (
	ConstraintInviteCode    = "appointments_invite_code_key"
	ConstraintCandidateDate = "appointment_dates_appointment_id_candidate_date_key"
	ConstraintParticipant   = "participations_user_appointment_key"
)

var ErrNotFound = errors.New("store: not found")

// UniqueViolation is returned when an insert or update trips a unique constraint.
type UniqueViolation struct {
	Constraint string
	Err        error
}

func (e *UniqueViolation) Error() string {
	return "store: unique violation on " + e.Constraint
}

func (e *UniqueViolation) Unwrap() error { return e.Err }

// IsUniqueViolation reports whether err is a unique violation on constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var uv *UniqueViolation
	if !errors.As(err, &uv) {
		return false
	}
	return constraint == "" || uv.Constraint == constraint
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &UniqueViolation{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}

// Querier is the set of coordination queries. *Queries implements it against
// either the pool or an open transaction.
type Querier interface {
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	InsertCandidateDates(ctx context.Context, appointmentID int64, dates []time.Time) ([]model.AppointmentDate, error)
	InsertParticipation(ctx context.Context, p *model.Participation) error
	AppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error)
	LockAppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error)
	CandidateDates(ctx context.Context, appointmentID int64) ([]model.AppointmentDate, error)
	ParticipationFor(ctx context.Context, appointmentID int64, userID string) (*model.Participation, error)
	CountParticipations(ctx context.Context, appointmentID int64) (int, error)
	Participations(ctx context.Context, appointmentID int64) ([]model.Participation, error)
	UpdateParticipation(ctx context.Context, p *model.Participation) error
	UpdateAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) error
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

type Store struct {
	*Queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Queries: &Queries{db: pool}, pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a single transaction. Any error from fn rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}
