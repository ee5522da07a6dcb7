package model

import "time"

type AppointmentStatus string

const (
	StatusVoting    AppointmentStatus = "VOTING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCanceled  AppointmentStatus = "CANCELED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusVoting, StatusConfirmed, StatusCanceled:
		return true
	}
	return false
}

type AttendanceStatus string

const (
	Attending    AttendanceStatus = "ATTENDING"
	NotAttending AttendanceStatus = "NOT_ATTENDING"
	Maybe        AttendanceStatus = "MAYBE"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case Attending, NotAttending, Maybe:
		return true
	}
	return false
}

type User struct {
	ID    string // google account id
	Email string
	Name  string
	// sealed, empty when the user never granted offline access
	GoogleRefreshToken string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Appointment struct {
	ID              int64
	Name            string
	CreatorID       string
	MaxParticipants *int // nil = unlimited
	Status          AppointmentStatus
	InviteCode      string
	CreatedAt       time.Time
}

// AppointmentDate is one candidate day. Date is always UTC midnight.
type AppointmentDate struct {
	ID            int64
	AppointmentID int64
	Date          time.Time
}

type Participation struct {
	ID            int64
	UserID        string
	AppointmentID int64
	Status        AttendanceStatus
	// opaque to the service, stored verbatim
	AvailableSlots *string
	UpdatedAt      time.Time
}

// AppointmentDetail is an appointment with its resolved candidate dates.
type AppointmentDetail struct {
	Appointment
	CandidateDates []AppointmentDate
}

type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}
