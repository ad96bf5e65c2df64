package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorix/examgate/internal/attempt"
	"github.com/proctorix/examgate/internal/response"
	"github.com/proctorix/examgate/internal/service"
	"github.com/proctorix/examgate/internal/upstream"
)

// failFromErr maps service and upstream errors onto the response taxonomy.
// Auth expiry and lockouts carry redirect hints so the client lands on the
// right screen instead of a raw error.
func failFromErr(c *gin.Context, err error) {
	var vErr *upstream.ValidationError
	var sErr *upstream.StatusError

	switch {
	case upstream.IsAuthExpired(err):
		response.FailWithRedirect(c, http.StatusUnauthorized, response.ErrAuthExpired, "login?expired=true")
	case errors.Is(err, upstream.ErrAuthRejected):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	case errors.Is(err, upstream.ErrRateLimited):
		response.Fail(c, http.StatusTooManyRequests, response.ErrRateLimited)
	case errors.As(err, &vErr):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, vErr.Detail)
	case upstream.IsTransient(err):
		response.Fail(c, http.StatusBadGateway, response.ErrNetworkTransient)
	case errors.Is(err, service.ErrAttemptLockedOut):
		response.FailWithRedirect(c, http.StatusForbidden, response.ErrAttemptLockedOut, "dashboard")
	case errors.Is(err, service.ErrAttemptSubmitted), errors.Is(err, attempt.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	case errors.Is(err, service.ErrNoActiveAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrTestUnavailable):
		response.Fail(c, http.StatusForbidden, response.ErrAttemptUnavailable)
	case errors.Is(err, attempt.ErrNotInProgress), errors.Is(err, attempt.ErrVerificationState):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
	case errors.Is(err, attempt.ErrQuestionOutOfRange), errors.Is(err, attempt.ErrQuestionUnknown):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionOutOfRange)
	case errors.Is(err, service.ErrSessionNotFound):
		response.FailWithRedirect(c, http.StatusUnauthorized, response.ErrSessionRequired, "login?expired=true")
	case errors.As(err, &sErr) && sErr.StatusCode == http.StatusNotFound:
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
