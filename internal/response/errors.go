package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrAuthExpired        ErrCode = "AUTH_EXPIRED"
	ErrSessionRequired    ErrCode = "SESSION_REQUIRED"
	ErrFaceNotVerified    ErrCode = "FACE_NOT_VERIFIED"
	ErrFaceCheckFailed    ErrCode = "FACE_CHECK_FAILED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptNotFound    ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotActive   ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAttemptLockedOut   ErrCode = "ATTEMPT_LOCKED_OUT"
	ErrAttemptSubmitted   ErrCode = "ATTEMPT_SUBMITTED"
	ErrAttemptUnavailable ErrCode = "ATTEMPT_UNAVAILABLE"
	ErrQuestionOutOfRange ErrCode = "QUESTION_OUT_OF_RANGE"

	// ─── Integrity ─────────────────────────────────────────────────────
	ErrIntegrityViolation ErrCode = "INTEGRITY_VIOLATION"

	// ─── Upstream / transport ──────────────────────────────────────────
	ErrRateLimited      ErrCode = "RATE_LIMITED"
	ErrNetworkTransient ErrCode = "NETWORK_TRANSIENT"
	ErrNotFound         ErrCode = "NOT_FOUND"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrAuthExpired:
		return "Your session has expired. Please log in again."
	case ErrSessionRequired:
		return "An authenticated session is required."
	case ErrFaceNotVerified:
		return "Identity verification is required before continuing."
	case ErrFaceCheckFailed:
		return "Face verification failed. Please try again."

	case ErrValidation:
		return "The request is not valid. Please verify the input data."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrAttemptNotFound:
		return "No active attempt for this assignment."
	case ErrAttemptNotActive:
		return "This attempt is not currently in progress."
	case ErrAttemptLockedOut:
		return "Access denied. You violated proctoring conditions."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrAttemptUnavailable:
		return "This test is not available right now."
	case ErrQuestionOutOfRange:
		return "The requested question does not exist in this attempt."

	case ErrIntegrityViolation:
		return "A proctoring violation was recorded."

	case ErrRateLimited:
		return "Too many tries. Please try again later."
	case ErrNetworkTransient:
		return "The exam service could not be reached. Please retry."
	case ErrNotFound:
		return "Resource not found."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
