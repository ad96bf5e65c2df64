package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/proctorix/examgate/internal/model"
)

// ExamClient fetches attempt material and submits answers through the
// authenticated pipeline.
type ExamClient struct {
	p *Pipeline
}

// NewExamClient creates the exam data collaborator client.
func NewExamClient(p *Pipeline) *ExamClient {
	return &ExamClient{p: p}
}

// ListAssignments returns the student's assigned tests with attempt history.
func (c *ExamClient) ListAssignments(ctx context.Context, sid string) ([]model.AssignmentSummary, error) {
	var body struct {
		Assignments []model.AssignmentSummary `json:"assignments"`
	}
	if err := c.p.Do(ctx, sid, http.MethodGet, "/student/assignments/", nil, &body); err != nil {
		return nil, err
	}
	return body.Assignments, nil
}

// FetchPaper returns the attempt metadata and ordered question sequence for
// one assignment. Grader-only option flags are stripped before the paper
// leaves the gateway.
func (c *ExamClient) FetchPaper(ctx context.Context, sid string, assignmentID int) (*model.AttemptPaper, error) {
	var paper model.AttemptPaper
	path := fmt.Sprintf("/student/assignments/%d/paper/", assignmentID)
	if err := c.p.Do(ctx, sid, http.MethodGet, path, nil, &paper); err != nil {
		return nil, err
	}

	for i := range paper.Questions {
		paper.Questions[i] = paper.Questions[i].Sanitize()
	}
	paper.AssignmentID = assignmentID
	return &paper, nil
}

// SubmitAnswers performs the single submission call for an attempt.
func (c *ExamClient) SubmitAnswers(ctx context.Context, sid string, assignmentID int, answers []model.SubmittedAnswer) error {
	payload := struct {
		AssignmentID int                     `json:"assignment_id"`
		Answers      []model.SubmittedAnswer `json:"answers"`
	}{AssignmentID: assignmentID, Answers: answers}

	path := fmt.Sprintf("/student/assignments/%d/submit/", assignmentID)
	return c.p.Do(ctx, sid, http.MethodPost, path, payload, nil)
}
