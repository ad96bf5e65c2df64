package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorix/examgate/internal/middleware"
	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/response"
	"github.com/proctorix/examgate/internal/service"
	"github.com/proctorix/examgate/internal/validator"
)

// SessionHandler handles the gateway session endpoints.
type SessionHandler struct {
	sessions     *service.SessionService
	cookieMaxAge int
	cookieSecure bool
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, cookieMaxAge int, cookieSecure bool) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		cookieMaxAge: cookieMaxAge,
		cookieSecure: cookieSecure,
	}
}

// Login godoc
// POST /api/v1/session/login
// Proxies credentials upstream and sets the opaque session cookie.
func (h *SessionHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sid, user, err := h.sessions.Login(c.Request.Context(), req)
	if err != nil {
		failFromErr(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sid, h.cookieMaxAge, "/", "", h.cookieSecure, true)

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// Logout godoc
// POST /api/v1/session/logout
// Ends the gateway session and clears the cookie.
func (h *SessionHandler) Logout(c *gin.Context) {
	sid := middleware.SessionID(c)
	h.sessions.Logout(c.Request.Context(), sid)

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cookieSecure, true)
	response.Success(c, http.StatusOK, gin.H{})
}

// Me godoc
// GET /api/v1/session/me
// Returns the session's user summary.
func (h *SessionHandler) Me(c *gin.Context) {
	sid := middleware.SessionID(c)
	user, err := h.sessions.Me(c.Request.Context(), sid)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// VerifyFace godoc
// POST /api/v1/session/verify-face
// Runs the biometric gate; a positive verdict unlocks the exam flow.
func (h *SessionHandler) VerifyFace(c *gin.Context) {
	var req model.VerifyFaceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sid := middleware.SessionID(c)
	ok, err := h.sessions.VerifyFace(c.Request.Context(), sid, req.FaceImage)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if !ok {
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrFaceCheckFailed)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verified": true})
}
