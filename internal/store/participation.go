package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"yakssok-api/internal/model"
)

const participationCols = `id, user_id, appointment_id, status, available_slots, updated_at`

func scanParticipation(row pgx.Row) (*model.Participation, error) {
	p := &model.Participation{}
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.AppointmentID, &status, &p.AvailableSlots, &p.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	p.Status = model.AttendanceStatus(status)
	return p, nil
}

func (q *Queries) InsertParticipation(ctx context.Context, p *model.Participation) error {
	if p.Status == "" {
		p.Status = model.Attending
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO participations (user_id, appointment_id, status, available_slots)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id, updated_at`,
		p.UserID, p.AppointmentID, string(p.Status), p.AvailableSlots,
	).Scan(&p.ID, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting participation: %w", translate(err))
	}
	return nil
}

func (q *Queries) ParticipationFor(ctx context.Context, appointmentID int64, userID string) (*model.Participation, error) {
	return scanParticipation(q.db.QueryRow(ctx,
		`SELECT `+participationCols+` FROM participations
		 WHERE appointment_id = $1 AND user_id = $2`, appointmentID, userID))
}

func (q *Queries) CountParticipations(ctx context.Context, appointmentID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM participations WHERE appointment_id = $1`, appointmentID,
	).Scan(&n)
	return n, err
}

func (q *Queries) Participations(ctx context.Context, appointmentID int64) ([]model.Participation, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+participationCols+` FROM participations
		 WHERE appointment_id = $1
		 ORDER BY id`, appointmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Participation{}
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateParticipation(ctx context.Context, p *model.Participation) error {
	err := q.db.QueryRow(ctx,
		`UPDATE participations
		 SET status = $1, available_slots = $2, updated_at = NOW()
		 WHERE id = $3
		 RETURNING updated_at`,
		string(p.Status), p.AvailableSlots, p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating participation: %w", translate(err))
	}
	return nil
}
