package model

// Credential is the set of upstream tokens owned by one browser session.
// It is mutated only by login, refresh, and logout; an unrecoverable refresh
// failure destroys it.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CSRFToken    string `json:"csrf_token,omitempty"`
}

// Empty reports whether no credential material is present.
func (c Credential) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// User is the summary of the authenticated account, cached per session.
// FaceVerified flips true only after a successful biometric check.
type User struct {
	ID           int    `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	FaceVerified bool   `json:"face_verified"`
}

// LoginRequest is the payload for establishing a gateway session.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=1"`
}

// VerifyFaceRequest carries a captured camera frame for the biometric gate.
type VerifyFaceRequest struct {
	FaceImage string `json:"face_image" binding:"required"`
}
