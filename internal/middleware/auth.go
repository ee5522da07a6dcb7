package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"yakssok-api/internal/auth"
)

type ctxKey string

const UserIDKey ctxKey = "uid"

// UserID returns the authenticated caller, or "" on public routes.
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UserIDKey, uid)
}

func bearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid access token and stores the
// caller's id in the request context.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "no token"})
			return
		}
		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "bad token"})
			return
		}
		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// Auth is the gRPC counterpart of RequireAuth. Methods listed in public skip it.
func Auth(secret string, public ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]bool, len(public))
	for _, m := range public {
		open[m] = true
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		// token from authorization: Bearer <jwt>
		raw := ""
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = bearer(vals[0])
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}

		return next(WithUserID(ctx, claims.UserID), req)
	}
}
