package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"yakssok-api/internal/model"
)

const appointmentCols = `id, name, creator_id, max_participants, status, invite_code, created_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	a := &model.Appointment{}
	var status string
	err := row.Scan(&a.ID, &a.Name, &a.CreatorID, &a.MaxParticipants, &status, &a.InviteCode, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	a.Status = model.AppointmentStatus(status)
	return a, nil
}

func (q *Queries) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM appointments WHERE invite_code = $1)`, code,
	).Scan(&exists)
	return exists, err
}

func (q *Queries) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO appointments (name, creator_id, max_participants, status, invite_code)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING id, created_at`,
		a.Name, a.CreatorID, a.MaxParticipants, string(a.Status), a.InviteCode,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", translate(err))
	}
	return nil
}

func (q *Queries) InsertCandidateDates(ctx context.Context, appointmentID int64, dates []time.Time) ([]model.AppointmentDate, error) {
	out := make([]model.AppointmentDate, 0, len(dates))
	for _, d := range dates {
		ad := model.AppointmentDate{AppointmentID: appointmentID}
		err := q.db.QueryRow(ctx,
			`INSERT INTO appointment_dates (appointment_id, candidate_date)
			 VALUES ($1,$2)
			 RETURNING id, candidate_date`,
			appointmentID, d,
		).Scan(&ad.ID, &ad.Date)
		if err != nil {
			return nil, fmt.Errorf("inserting candidate date: %w", translate(err))
		}
		out = append(out, ad)
	}
	return out, nil
}

func (q *Queries) AppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error) {
	return scanAppointment(q.db.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE invite_code = $1`, code))
}

// LockAppointmentByInviteCode takes a row lock held until the surrounding
// transaction ends; concurrent joiners of one appointment queue here.
func (q *Queries) LockAppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error) {
	return scanAppointment(q.db.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE invite_code = $1 FOR UPDATE`, code))
}

func (q *Queries) CandidateDates(ctx context.Context, appointmentID int64) ([]model.AppointmentDate, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, appointment_id, candidate_date
		 FROM appointment_dates
		 WHERE appointment_id = $1
		 ORDER BY candidate_date`, appointmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AppointmentDate{}
	for rows.Next() {
		var d model.AppointmentDate
		if err := rows.Scan(&d.ID, &d.AppointmentID, &d.Date); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE appointments SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
