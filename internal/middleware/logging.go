package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestLog tags every request with an id and writes one access log line.
// Query strings are left out: they can carry OAuth codes.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Header(RequestIDHeader, rid)
		c.Set("rid", rid)

		start := time.Now()
		c.Next()

		log.Printf("%s %s %d %dB %s rid=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.Writer.Size(),
			time.Since(start).Round(time.Microsecond), rid)
	}
}

// validRequestID accepts up to 64 letters, digits and dashes, so a client id
// can never break the log line it is written into.
func validRequestID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}
