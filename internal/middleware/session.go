package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorix/examgate/internal/guard"
	"github.com/proctorix/examgate/internal/response"
)

const (
	// SessionCookie carries the opaque gateway session id. Tokens never
	// reach the browser.
	SessionCookie = "examgate_sid"
	// ContextKeySID is the Gin context key for the resolved session id.
	ContextKeySID = "sid"

	redirectLogin      = "login?expired=true"
	redirectVerifyFace = "verify-face"
)

// SessionID returns the session id resolved by the middleware, or "".
func SessionID(c *gin.Context) string {
	sid, _ := c.Get(ContextKeySID)
	s, _ := sid.(string)
	return s
}

// RequireSession rejects requests without an authenticated gateway session.
// The failure carries a redirect hint so the client lands on the login page
// rather than an error screen.
func RequireSession(g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			response.AbortFailWithRedirect(c, http.StatusUnauthorized, response.ErrSessionRequired, redirectLogin)
			return
		}

		status, err := g.Resolve(c.Request.Context(), sid)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
		if status == guard.StatusUnauthenticated || status == guard.StatusUnknown {
			response.AbortFailWithRedirect(c, http.StatusUnauthorized, response.ErrAuthExpired, redirectLogin)
			return
		}

		c.Set(ContextKeySID, sid)
		c.Next()
	}
}

// RequireVerifiedSession additionally requires the face gate to have passed.
// Unverified sessions get a redirect hint to the verification step.
func RequireVerifiedSession(g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			response.AbortFailWithRedirect(c, http.StatusUnauthorized, response.ErrSessionRequired, redirectLogin)
			return
		}

		status, err := g.Resolve(c.Request.Context(), sid)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
		switch status {
		case guard.StatusFull:
			c.Set(ContextKeySID, sid)
			c.Next()
		case guard.StatusUnverified:
			response.AbortFailWithRedirect(c, http.StatusForbidden, response.ErrFaceNotVerified, redirectVerifyFace)
		default:
			response.AbortFailWithRedirect(c, http.StatusUnauthorized, response.ErrAuthExpired, redirectLogin)
		}
	}
}
