package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"yakssok-api/internal/coordination"
	"yakssok-api/internal/model"
)

type createAppointmentRequest struct {
	Name            string   `json:"name" binding:"required,max=255"`
	MaxParticipants *int     `json:"max_participants" binding:"omitempty,min=1,max=2147483647"`
	CandidateDates  []string `json:"candidate_dates" binding:"omitempty,dive,datetime=2006-01-02"`
	StartDate       *string  `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate         *string  `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

type appointmentResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	CreatorID       string    `json:"creator_id"`
	MaxParticipants *int      `json:"max_participants"`
	Status          string    `json:"status"`
	InviteCode      string    `json:"invite_code"`
	CreatedAt       time.Time `json:"created_at"`
	CandidateDates  []string  `json:"candidate_dates,omitempty"`
}

type dateResponse struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
}

type participationResponse struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	AppointmentID  int64     `json:"appointment_id"`
	Status         string    `json:"status"`
	AvailableSlots *string   `json:"available_slots"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAppointment(a *model.Appointment, dates []model.AppointmentDate) appointmentResponse {
	out := appointmentResponse{
		ID:              a.ID,
		Name:            a.Name,
		CreatorID:       a.CreatorID,
		MaxParticipants: a.MaxParticipants,
		Status:          string(a.Status),
		InviteCode:      a.InviteCode,
		CreatedAt:       a.CreatedAt,
	}
	if dates != nil {
		out.CandidateDates = make([]string, len(dates))
		for i, d := range dates {
			out.CandidateDates[i] = d.Date.Format(coordination.DayLayout)
		}
	}
	return out
}

func toParticipation(p *model.Participation) participationResponse {
	return participationResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		AppointmentID:  p.AppointmentID,
		Status:         string(p.Status),
		AvailableSlots: p.AvailableSlots,
		UpdatedAt:      p.UpdatedAt,
	}
}

func parseDay(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	d, err := coordination.ParseDay(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := coordination.CreateInput{
		Name:            req.Name,
		CreatorID:       uid(c),
		MaxParticipants: req.MaxParticipants,
	}
	for _, s := range req.CandidateDates {
		d, err := coordination.ParseDay(s)
		if err != nil {
			fail(c, err)
			return
		}
		in.CandidateDates = append(in.CandidateDates, d)
	}
	var err error
	if in.StartDate, err = parseDay(req.StartDate); err != nil {
		fail(c, err)
		return
	}
	if in.EndDate, err = parseDay(req.EndDate); err != nil {
		fail(c, err)
		return
	}

	detail, err := h.Appointments.CreateAppointment(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAppointment(&detail.Appointment, detail.CandidateDates))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	detail, err := h.Appointments.AppointmentByInviteCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAppointment(&detail.Appointment, detail.CandidateDates))
}

func (h *Handler) ListCandidateDates(c *gin.Context) {
	dates, err := h.Appointments.CandidateDatesByInviteCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]dateResponse, len(dates))
	for i, d := range dates {
		out[i] = dateResponse{ID: d.ID, Date: d.Date.Format(coordination.DayLayout)}
	}
	c.JSON(http.StatusOK, gin.H{"dates": out})
}

func (h *Handler) JoinAppointment(c *gin.Context) {
	p, err := h.Appointments.JoinAppointment(c.Request.Context(), c.Param("code"), uid(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toParticipation(p))
}

type updateParticipationRequest struct {
	Status         *string `json:"status" binding:"omitempty,oneof=ATTENDING NOT_ATTENDING MAYBE"`
	AvailableSlots *string `json:"available_slots"`
}

func (h *Handler) UpdateParticipation(c *gin.Context) {
	var req updateParticipationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	upd := coordination.ParticipationUpdate{AvailableSlots: req.AvailableSlots}
	if req.Status != nil {
		s := model.AttendanceStatus(*req.Status)
		upd.Status = &s
	}

	p, err := h.Appointments.UpdateParticipation(c.Request.Context(), c.Param("code"), uid(c), upd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toParticipation(p))
}

func (h *Handler) ListParticipations(c *gin.Context) {
	parts, err := h.Appointments.Participations(c.Request.Context(), c.Param("code"), uid(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]participationResponse, len(parts))
	for i := range parts {
		out[i] = toParticipation(&parts[i])
	}
	c.JSON(http.StatusOK, gin.H{"participations": out})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.Appointments.SetStatus(c.Request.Context(), c.Param("code"), uid(c), model.AppointmentStatus(req.Status))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAppointment(a, nil))
}
