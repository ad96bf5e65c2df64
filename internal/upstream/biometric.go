package upstream

import (
	"context"
	"net/http"
)

// BiometricClient fronts the face-verification collaborator. The scoring
// algorithm is opaque to the gateway: submit an image, get a verdict.
type BiometricClient struct {
	p *Pipeline
}

// NewBiometricClient creates the biometric collaborator client.
func NewBiometricClient(p *Pipeline) *BiometricClient {
	return &BiometricClient{p: p}
}

// Verify submits a captured frame for identity verification. A false verdict
// with a nil error is a soft failure the candidate may retry; an error is
// classified by the pipeline (auth errors force logout).
func (c *BiometricClient) Verify(ctx context.Context, sid, faceImage string, assignmentID int) (bool, error) {
	payload := struct {
		FaceImage    string `json:"face_image"`
		AssignmentID int    `json:"assignment_id,omitempty"`
	}{FaceImage: faceImage, AssignmentID: assignmentID}

	var body struct {
		Success bool `json:"success"`
	}
	if err := c.p.Do(ctx, sid, http.MethodPost, "/face-login/", payload, &body); err != nil {
		return false, err
	}
	return body.Success, nil
}
