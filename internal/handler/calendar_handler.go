package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"yakssok-api/internal/calendar"
)

func (h *Handler) ListCalendarEvents(c *gin.Context) {
	var p calendar.ListParams

	for _, f := range []struct {
		key string
		dst **time.Time
	}{
		{"time_min", &p.TimeMin},
		{"time_max", &p.TimeMax},
	} {
		v := c.Query(f.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, f.key+" must be RFC 3339")
			return
		}
		*f.dst = &t
	}

	if v := c.Query("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "max_results must be an integer")
			return
		}
		p.MaxResults = n
	}
	p.PageToken = c.Query("page_token")

	page, err := h.Calendar.ListEvents(c.Request.Context(), uid(c), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
