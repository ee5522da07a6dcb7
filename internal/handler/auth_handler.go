package handler

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"yakssok-api/internal/auth"
	"yakssok-api/internal/model"
	"yakssok-api/internal/store"
)

const (
	refreshCookie     = "refresh_token"
	refreshCookiePath = "/auth/"

	stateCookie     = "oauth_state"
	stateCookiePath = "/user/google/"
	stateMaxAge     = 10 * 60
)

// GoogleLogin binds a fresh OAuth state to the browser through a cookie, so
// the callback only accepts a login this browser started.
func (h *Handler) GoogleLogin(c *gin.Context) {
	force := c.Query("force") == "1" || c.Query("force") == "true"
	state := auth.NewState()
	h.setCookie(c, stateCookie, state, stateMaxAge, stateCookiePath)
	c.JSON(http.StatusOK, gin.H{"auth_url": h.Google.AuthURL(state, force)})
}

func (h *Handler) checkState(c *gin.Context) bool {
	want, err := c.Cookie(stateCookie)
	h.setCookie(c, stateCookie, "", -1, stateCookiePath)
	got := c.Query("state")
	if err != nil || want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// GoogleCallback finishes the OAuth dance: it stores the user with its
// sealed Google refresh token, then hands our own tokens to the frontend.
func (h *Handler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		badRequest(c, "missing code")
		return
	}
	if !h.checkState(c) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "invalid_state", Message: "oauth state does not match"})
		return
	}
	ctx := c.Request.Context()

	tok, err := h.Google.Exchange(ctx, code)
	if err != nil {
		log.Printf("google exchange: %v", err)
		unauthorized(c, "google_exchange_failed", "could not exchange authorization code")
		return
	}
	info, err := h.Google.UserInfo(ctx, tok)
	if err != nil {
		log.Printf("google userinfo: %v", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Code: "google_userinfo_failed"})
		return
	}

	sealed, err := h.Sealer.Seal(tok.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	u := &model.User{ID: info.ID, Email: info.Email, Name: info.Name, GoogleRefreshToken: sealed}
	if u.Name == "" {
		u.Name = strings.SplitN(info.Email, "@", 2)[0]
	}
	if err := h.Accounts.UpsertGoogleUser(ctx, u); err != nil {
		if store.IsUniqueViolation(err, "") {
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Code: "email_taken"})
			return
		}
		fail(c, err)
		return
	}

	access, err := h.issueTokens(c, u.ID)
	if err != nil {
		fail(c, err)
		return
	}

	c.Redirect(http.StatusFound, h.cfg.FrontendURL+"/auth/callback?access_token="+url.QueryEscape(access))
}

// issueTokens creates an access token and a fresh refresh token cookie.
func (h *Handler) issueTokens(c *gin.Context, userID string) (string, error) {
	access, err := auth.MakeToken(userID, h.cfg.Secret, h.cfg.AccessTTL)
	if err != nil {
		return "", err
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return "", err
	}
	if _, err := h.Accounts.CreateRefreshToken(c.Request.Context(), userID, hash, time.Now().Add(h.cfg.RefreshTTL)); err != nil {
		return "", err
	}
	h.setRefreshCookie(c, raw, int(h.cfg.RefreshTTL.Seconds()))
	return access, nil
}

func (h *Handler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	h.setCookie(c, refreshCookie, value, maxAge, refreshCookiePath)
}

func (h *Handler) setCookie(c *gin.Context, name, value string, maxAge int, path string) {
	secure := strings.HasPrefix(h.cfg.FrontendURL, "https://")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, path, "", secure, true)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh rotates the refresh token. Presenting a token that was already
// rotated means it leaked, so every session of that user is revoked.
func (h *Handler) Refresh(c *gin.Context) {
	raw, err := c.Cookie(refreshCookie)
	if err != nil || raw == "" {
		unauthorized(c, "unauthorized", "no refresh token")
		return
	}
	ctx := c.Request.Context()

	rt, err := h.Accounts.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		unauthorized(c, "unauthorized", "unknown refresh token")
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	if rt.Revoked {
		h.revokeReused(c, rt.UserID)
		return
	}
	if time.Now().After(rt.ExpiresAt) {
		unauthorized(c, "unauthorized", "refresh token expired")
		return
	}

	newRaw, newHash, err := auth.GenerateRefreshToken()
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.Accounts.RotateRefreshToken(ctx, rt.ID, rt.UserID, newHash, time.Now().Add(h.cfg.RefreshTTL)); err != nil {
		// lost a race with another rotation of the same token
		if errors.Is(err, store.ErrNotFound) {
			h.revokeReused(c, rt.UserID)
			return
		}
		fail(c, err)
		return
	}

	access, err := auth.MakeToken(rt.UserID, h.cfg.Secret, h.cfg.AccessTTL)
	if err != nil {
		fail(c, err)
		return
	}
	h.setRefreshCookie(c, newRaw, int(h.cfg.RefreshTTL.Seconds()))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(h.cfg.AccessTTL.Seconds()),
	})
}

func (h *Handler) revokeReused(c *gin.Context, userID string) {
	if err := h.Accounts.RevokeAllRefreshTokens(c.Request.Context(), userID); err != nil {
		fail(c, err)
		return
	}
	log.Printf("refresh token reuse, revoked all sessions of %s", userID)
	h.setRefreshCookie(c, "", -1)
	unauthorized(c, "token_reused", "refresh token already used")
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.Accounts.RevokeAllRefreshTokens(c.Request.Context(), uid(c)); err != nil {
		fail(c, err)
		return
	}
	h.setRefreshCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}
