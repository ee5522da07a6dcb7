package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"yakssok-api/internal/calendar"
	"yakssok-api/internal/coordination"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	ReauthURL string `json:"reauthUrl,omitempty"`
}

var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{coordination.ErrInvalidDateRange, http.StatusBadRequest, "invalid_date_range"},
	{coordination.ErrDateRangeTooLong, http.StatusBadRequest, "date_range_too_long"},
	{coordination.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{calendar.ErrInvalidParams, http.StatusBadRequest, "invalid_input"},
	{coordination.ErrNotFound, http.StatusNotFound, "not_found"},
	{coordination.ErrNotJoinable, http.StatusConflict, "not_joinable"},
	{coordination.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{coordination.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{coordination.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{coordination.ErrNotParticipant, http.StatusForbidden, "not_participant"},
	{coordination.ErrForbidden, http.StatusForbidden, "forbidden"},
	{coordination.ErrInviteCodeExhausted, http.StatusServiceUnavailable, "invite_code_exhausted"},
}

func fail(c *gin.Context, err error) {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			c.AbortWithStatusJSON(d.status, errorResponse{Code: d.code, Message: err.Error()})
			return
		}
	}

	var ae *calendar.AuthError
	if errors.As(err, &ae) {
		resp := errorResponse{Code: ae.Code}
		if ae.Reauth() {
			resp.ReauthURL = calendar.ReauthURL
		}
		c.AbortWithStatusJSON(ae.Status, resp)
		return
	}

	var pe *calendar.ProviderError
	if errors.As(err, &pe) {
		log.Printf("calendar provider: %v rid=%s", err, c.GetString("rid"))
		c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Code: "calendar_provider_error"})
		return
	}

	log.Printf("%s %s: %v rid=%s", c.Request.Method, c.FullPath(), err, c.GetString("rid"))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Code: "internal", Message: "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "invalid_input", Message: msg})
}

func unauthorized(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: code, Message: msg})
}
