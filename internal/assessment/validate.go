package assessment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultTopic = "General"

// QuestionInput is a question as uploaded by faculty. Difficulty may be a
// number or one of "easy", "medium", "hard".
type QuestionInput struct {
	ID            string   `json:"id,omitempty"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Difficulty    any      `json:"difficulty,omitempty"`
	Topic         string   `json:"topic,omitempty"`
}

type Draft struct {
	Code               string          `json:"code"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Level              string          `json:"level,omitempty"`
	DurationSec        int             `json:"duration_sec"`
	PassScore          float64         `json:"pass_score"`
	QuestionsToAttempt int             `json:"questions_to_attempt,omitempty"`
	Questions          []QuestionInput `json:"questions"`
}

// NormalizeDifficulty maps an uploaded difficulty onto the 1..5 scale.
// Unknown or missing values fall back to DefaultDifficulty.
func NormalizeDifficulty(v any) int {
	switch t := v.(type) {
	case int:
		return normInt(t)
	case int64:
		return normInt(int(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return DefaultDifficulty
		}
		return normInt(int(t))
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "easy":
			return 1
		case "medium":
			return 3
		case "hard":
			return 5
		}
		if n, err := strconv.Atoi(s); err == nil {
			return normInt(n)
		}
	}
	return DefaultDifficulty
}

func normInt(n int) int {
	if n < MinDifficulty || n > MaxDifficulty {
		return DefaultDifficulty
	}
	return n
}

// Build validates a draft and turns it into an Assessment with a fresh ID.
func Build(d Draft, createdBy string, now time.Time) (Assessment, error) {
	d.Code = strings.TrimSpace(d.Code)
	d.Title = strings.TrimSpace(d.Title)
	if d.Code == "" || d.Title == "" {
		return Assessment{}, fmt.Errorf("%w: code and title are required", ErrInvalid)
	}
	if d.DurationSec <= 0 {
		return Assessment{}, fmt.Errorf("%w: duration must be positive", ErrInvalid)
	}
	if d.PassScore < 0 || d.PassScore > 100 {
		return Assessment{}, fmt.Errorf("%w: pass score must be within 0..100", ErrInvalid)
	}
	if len(d.Questions) == 0 {
		return Assessment{}, fmt.Errorf("%w: question bank is empty", ErrInvalid)
	}
	if d.QuestionsToAttempt < 0 || d.QuestionsToAttempt > len(d.Questions) {
		return Assessment{}, fmt.Errorf("%w: questions to attempt must be between 1 and %d", ErrInvalid, len(d.Questions))
	}

	seen := make(map[string]struct{}, len(d.Questions))
	bank := make([]Question, 0, len(d.Questions))
	for i, in := range d.Questions {
		q := Question{
			ID:            strings.TrimSpace(in.ID),
			Text:          strings.TrimSpace(in.Text),
			Options:       in.Options,
			CorrectOption: in.CorrectOption,
			Difficulty:    NormalizeDifficulty(in.Difficulty),
			Topic:         strings.TrimSpace(in.Topic),
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Topic == "" {
			q.Topic = DefaultTopic
		}
		if err := validateQuestion(q); err != nil {
			return Assessment{}, fmt.Errorf("%w: question %d: %v", ErrInvalid, i+1, err)
		}
		if _, dup := seen[q.ID]; dup {
			return Assessment{}, fmt.Errorf("%w: duplicate question id %q", ErrInvalid, q.ID)
		}
		seen[q.ID] = struct{}{}
		bank = append(bank, q)
	}

	return Assessment{
		ID:                 uuid.NewString(),
		Code:               d.Code,
		Title:              d.Title,
		Description:        d.Description,
		Level:              d.Level,
		DurationSec:        d.DurationSec,
		PassScore:          d.PassScore,
		Questions:          bank,
		QuestionsToAttempt: d.QuestionsToAttempt,
		CreatedBy:          createdBy,
		CreatedAt:          now,
	}, nil
}

func validateQuestion(q Question) error {
	if q.Text == "" {
		return fmt.Errorf("text is required")
	}
	if len(q.Options) < 2 || len(q.Options) > 4 {
		return fmt.Errorf("need 2 to 4 options, got %d", len(q.Options))
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return fmt.Errorf("correct option %d out of range", q.CorrectOption)
	}
	return nil
}
