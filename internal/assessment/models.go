package assessment

import "time"

// Difficulty bounds for the ordinal scale used by questions and the oracle.
const (
	MinDifficulty     = 1
	MaxDifficulty     = 5
	DefaultDifficulty = 3
)

type Tier string

const (
	TierEasy   Tier = "easy"   // difficulty 1-2
	TierMedium Tier = "medium" // difficulty 3
	TierHard   Tier = "hard"   // difficulty 4-5
)

// TierOf buckets an ordinal difficulty.
func TierOf(difficulty int) Tier {
	switch {
	case difficulty <= 2:
		return TierEasy
	case difficulty == 3:
		return TierMedium
	default:
		return TierHard
	}
}

// ClampDifficulty pins d into [MinDifficulty, MaxDifficulty].
func ClampDifficulty(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Difficulty    int      `json:"difficulty"`
	Topic         string   `json:"topic"`
}

// PublicQuestion is a question as served to a student: no answer key.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Difficulty int      `json:"difficulty"`
	Topic      string   `json:"topic"`
}

func (q Question) Public() PublicQuestion {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return PublicQuestion{
		ID:         q.ID,
		Text:       q.Text,
		Options:    opts,
		Difficulty: q.Difficulty,
		Topic:      q.Topic,
	}
}

type Assessment struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Level       string     `json:"level,omitempty"`
	DurationSec int        `json:"duration_sec"`
	PassScore   float64    `json:"pass_score"`
	Questions   []Question `json:"questions"`

	// QuestionsToAttempt is 0 when unset.
	QuestionsToAttempt int `json:"questions_to_attempt,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FixedForm reports whether the assessment is served as a pre-sampled form.
func (a Assessment) FixedForm() bool {
	return a.QuestionsToAttempt > 0 && a.QuestionsToAttempt < len(a.Questions)
}

// SessionLimit is the maximum number of questions an adaptive session may ask.
func (a Assessment) SessionLimit(floor int) int {
	if a.QuestionsToAttempt > floor {
		return a.QuestionsToAttempt
	}
	return floor
}

func (a Assessment) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// AssessmentSummary is the list view, without the bank.
type AssessmentSummary struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	Title              string    `json:"title"`
	Level              string    `json:"level,omitempty"`
	DurationSec        int       `json:"duration_sec"`
	PassScore          float64   `json:"pass_score"`
	TotalQuestions     int       `json:"total_questions"`
	QuestionsToAttempt int       `json:"questions_to_attempt,omitempty"`
	CompletedAttempts  int       `json:"completed_attempts"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type Student struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

// Status makes the attempt lifecycle explicit.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type AskedQuestion struct {
	QuestionID string    `json:"question_id"`
	Difficulty int       `json:"difficulty"`
	AskedAt    time.Time `json:"asked_at"`
}

type Answer struct {
	QuestionID     string    `json:"question_id"`
	SelectedOption int       `json:"selected_option"`
	Correct        bool      `json:"correct"`
	Difficulty     int       `json:"difficulty"`
	AnsweredAt     time.Time `json:"answered_at"`
}

type Attempt struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	AssessmentID string     `json:"assessment_id"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	Passed       bool       `json:"passed"`

	Asked   []AskedQuestion `json:"asked_questions"`
	Answers []Answer        `json:"answers"`

	// Form holds the question IDs of a fixed-form attempt, in display order.
	Form []string `json:"form,omitempty"`
}

func (a Attempt) Completed() bool { return a.Status == StatusCompleted }

func (a Attempt) HasAnswered(questionID string) bool {
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return true
		}
	}
	return false
}

func (a Attempt) HasAsked(questionID string) bool {
	for _, q := range a.Asked {
		if q.QuestionID == questionID {
			return true
		}
	}
	return false
}

func (a Attempt) InForm(questionID string) bool {
	for _, id := range a.Form {
		if id == questionID {
			return true
		}
	}
	return false
}

// Served reports whether the question was handed to the student, either
// adaptively or as part of the fixed form.
func (a Attempt) Served(questionID string) bool {
	return a.HasAsked(questionID) || a.InForm(questionID)
}

func (a Attempt) CorrectCount() int {
	n := 0
	for _, ans := range a.Answers {
		if ans.Correct {
			n++
		}
	}
	return n
}

// TimeSpent is zero until the attempt is completed.
func (a Attempt) TimeSpent() time.Duration {
	if a.EndedAt == nil {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}

func (a Attempt) clone() Attempt {
	out := a
	out.Asked = append([]AskedQuestion(nil), a.Asked...)
	out.Answers = append([]Answer(nil), a.Answers...)
	out.Form = append([]string(nil), a.Form...)
	if a.EndedAt != nil {
		t := *a.EndedAt
		out.EndedAt = &t
	}
	if a.Score != nil {
		s := *a.Score
		out.Score = &s
	}
	return out
}

// ScorePercent is 100 * correct / answered, or 0 with no answers.
func ScorePercent(answers []Answer) float64 {
	if len(answers) == 0 {
		return 0
	}
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(answers))
}
