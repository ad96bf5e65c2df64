package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/proctorix/examgate/internal/middleware"
	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/response"
	"github.com/proctorix/examgate/internal/service"
	"github.com/proctorix/examgate/internal/validator"
)

// AttemptHandler handles the attempt lifecycle endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

func assignmentID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("assignment_id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// List godoc
// GET /api/v1/attempts
// Returns the student's assignments with availability.
func (h *AttemptHandler) List(c *gin.Context) {
	sid := middleware.SessionID(c)
	summaries, err := h.attempts.List(c.Request.Context(), sid)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assignments": summaries})
}

// Start godoc
// POST /api/v1/attempts/:assignment_id/start
// Creates the attempt controller; refuses terminated attempts.
func (h *AttemptHandler) Start(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	snap, err := h.attempts.Start(c.Request.Context(), middleware.SessionID(c), id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"attempt": snap})
}

// State godoc
// GET /api/v1/attempts/:assignment_id/state
// Returns the live attempt snapshot for rehydration.
func (h *AttemptHandler) State(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	snap, err := h.attempts.State(middleware.SessionID(c), id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": snap})
}

// VerifyFace godoc
// POST /api/v1/attempts/:assignment_id/verify-face
// Runs the attempt-level face gate through the controller.
func (h *AttemptHandler) VerifyFace(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	var req model.VerifyFaceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	verified, err := h.attempts.VerifyFace(c.Request.Context(), middleware.SessionID(c), id, req.FaceImage)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if !verified {
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrFaceCheckFailed)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

// Fullscreen godoc
// POST /api/v1/attempts/:assignment_id/fullscreen
// Reports the browser's fullscreen outcome after the face gate.
func (h *AttemptHandler) Fullscreen(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	var req model.FullscreenResultRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.FullscreenResult(c.Request.Context(), middleware.SessionID(c), id, req.Entered, req.Reason); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// SaveAnswer godoc
// POST /api/v1/attempts/:assignment_id/answer
// Validates and stores one answer.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.SaveAnswer(middleware.SessionID(c), id, req); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Navigate godoc
// POST /api/v1/attempts/:assignment_id/navigate
// Moves the attempt cursor within the question sequence.
func (h *AttemptHandler) Navigate(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	index, err := h.attempts.Navigate(middleware.SessionID(c), id, req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"current_index": index})
}

// Finish godoc
// POST /api/v1/attempts/:assignment_id/finish
// The candidate-initiated submission.
func (h *AttemptHandler) Finish(c *gin.Context) {
	id, ok := assignmentID(c)
	if !ok {
		return
	}

	if err := h.attempts.Finish(c.Request.Context(), middleware.SessionID(c), id); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submitted": true})
}
