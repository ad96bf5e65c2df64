package model

import "fmt"

// QuestionType discriminates the question variants.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single"
	QuestionMultipleChoice QuestionType = "multiple"
	QuestionOpenText       QuestionType = "open"
	QuestionCode           QuestionType = "code"
)

// AnswerOption is one selectable option of a choice question. The upstream
// grading flag is never exposed to candidates; the gateway strips it before
// serving a paper.
type AnswerOption struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// Question is one question of an attempt, polymorphic over Type.
// Language and StarterCode are populated for code questions only.
type Question struct {
	ID          int            `json:"id"`
	Text        string         `json:"text"`
	Type        QuestionType   `json:"type"`
	Points      int            `json:"points"`
	Options     []AnswerOption `json:"options,omitempty"`
	Language    string         `json:"language,omitempty"`
	StarterCode string         `json:"starter_code,omitempty"`
}

// Sanitize removes grader-only data before the question leaves the gateway.
func (q Question) Sanitize() Question {
	if len(q.Options) == 0 {
		return q
	}
	opts := make([]AnswerOption, len(q.Options))
	for i, o := range q.Options {
		o.IsCorrect = false
		opts[i] = o
	}
	q.Options = opts
	return q
}

// AnswerValue is a candidate's answer to one question. Exactly one of the
// two fields is meaningful depending on the question variant.
type AnswerValue struct {
	SelectedOptions []int  `json:"selected_options,omitempty"`
	Text            string `json:"text,omitempty"`
}

// ValidateFor checks that the answer shape matches the question variant.
func (a AnswerValue) ValidateFor(q Question) error {
	switch q.Type {
	case QuestionSingleChoice:
		if len(a.SelectedOptions) > 1 {
			return fmt.Errorf("single-choice question %d accepts at most one selection, got %d", q.ID, len(a.SelectedOptions))
		}
		return a.checkOptionIDs(q)
	case QuestionMultipleChoice:
		return a.checkOptionIDs(q)
	case QuestionOpenText, QuestionCode:
		if len(a.SelectedOptions) > 0 {
			return fmt.Errorf("question %d takes free text, not option selections", q.ID)
		}
		return nil
	default:
		return fmt.Errorf("unsupported question type %q", q.Type)
	}
}

func (a AnswerValue) checkOptionIDs(q Question) error {
	for _, sel := range a.SelectedOptions {
		found := false
		for _, opt := range q.Options {
			if opt.ID == sel {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("option %d does not belong to question %d", sel, q.ID)
		}
	}
	return nil
}

// SubmittedAnswer is the per-question payload shape the upstream submission
// endpoint expects.
type SubmittedAnswer struct {
	QuestionID      int    `json:"question_id"`
	SelectedOptions []int  `json:"selected_options,omitempty"`
	AnswerText      string `json:"answer_text,omitempty"`
}
