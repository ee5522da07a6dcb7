package rpc

import "time"

type CreateAppointmentRequest struct {
	Name            string   `json:"name"`
	MaxParticipants *int     `json:"max_participants,omitempty"`
	CandidateDates  []string `json:"candidate_dates,omitempty"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
}

type InviteCodeRequest struct {
	InviteCode string `json:"invite_code"`
}

type Appointment struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	CreatorID       string    `json:"creator_id"`
	MaxParticipants *int      `json:"max_participants,omitempty"`
	Status          string    `json:"status"`
	InviteCode      string    `json:"invite_code"`
	CreatedAt       time.Time `json:"created_at"`
	CandidateDates  []string  `json:"candidate_dates,omitempty"`
}

type Participation struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	AppointmentID int64     `json:"appointment_id"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CandidateDate struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
}

type CandidateDates struct {
	Dates []CandidateDate `json:"dates"`
}
