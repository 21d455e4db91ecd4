package assessment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu          sync.RWMutex
	assessments map[string]Assessment
	byCode      map[string]string
	students    map[string]Student
	attempts    map[string]*Attempt // attempt id -> attempt
	byPair      map[string]string   // student|assessment -> attempt id
}

// NewInMemoryStore returns a Store backed by maps, used in offline mode and tests.
func NewInMemoryStore() Store {
	return &memoryStore{
		assessments: map[string]Assessment{},
		byCode:      map[string]string{},
		students:    map[string]Student{},
		attempts:    map[string]*Attempt{},
		byPair:      map[string]string{},
	}
}

func pairKey(studentID, assessmentID string) string { return studentID + "|" + assessmentID }

func (m *memoryStore) PutAssessment(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byCode[a.Code]; ok && id != a.ID {
		return ErrCodeTaken
	}
	if prev, ok := m.assessments[a.ID]; ok && prev.Code != a.Code {
		delete(m.byCode, prev.Code)
	}
	a.Questions = append([]Question(nil), a.Questions...)
	m.assessments[a.ID] = a
	m.byCode[a.Code] = a.ID
	return nil
}

func (m *memoryStore) GetAssessment(_ context.Context, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[id]
	if !ok {
		return Assessment{}, fmt.Errorf("assessment %q: %w", id, ErrNotFound)
	}
	a.Questions = append([]Question(nil), a.Questions...)
	return a, nil
}

func (m *memoryStore) GetAssessmentByCode(ctx context.Context, code string) (Assessment, error) {
	m.mu.RLock()
	id, ok := m.byCode[code]
	m.mu.RUnlock()
	if !ok {
		return Assessment{}, fmt.Errorf("assessment code %q: %w", code, ErrNotFound)
	}
	return m.GetAssessment(ctx, id)
}

func (m *memoryStore) ListAssessments(_ context.Context, opts ListOpts) ([]AssessmentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	completed := map[string]int{}
	for _, at := range m.attempts {
		if at.Completed() {
			completed[at.AssessmentID]++
		}
	}
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := make([]AssessmentSummary, 0, len(m.assessments))
	for _, a := range m.assessments {
		if opts.CreatedBy != "" && a.CreatedBy != opts.CreatedBy {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(a.Title), q) && !strings.Contains(strings.ToLower(a.Code), q) {
			continue
		}
		out = append(out, summarize(a, completed[a.ID]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts.Limit, opts.Offset), nil
}

func summarize(a Assessment, completed int) AssessmentSummary {
	return AssessmentSummary{
		ID:                 a.ID,
		Code:               a.Code,
		Title:              a.Title,
		Level:              a.Level,
		DurationSec:        a.DurationSec,
		PassScore:          a.PassScore,
		TotalQuestions:     len(a.Questions),
		QuestionsToAttempt: a.QuestionsToAttempt,
		CompletedAttempts:  completed,
		CreatedBy:          a.CreatedBy,
		CreatedAt:          a.CreatedAt,
	}
}

func (m *memoryStore) PutStudent(_ context.Context, s Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

func (m *memoryStore) GetStudent(_ context.Context, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, fmt.Errorf("student %q: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *memoryStore) EnsureAttempt(_ context.Context, studentID, assessmentID string, now time.Time) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assessments[assessmentID]; !ok {
		return Attempt{}, false, fmt.Errorf("assessment %q: %w", assessmentID, ErrNotFound)
	}
	if id, ok := m.byPair[pairKey(studentID, assessmentID)]; ok {
		return m.attempts[id].clone(), false, nil
	}
	a := &Attempt{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		AssessmentID: assessmentID,
		Status:       StatusInProgress,
		StartedAt:    now,
	}
	m.attempts[a.ID] = a
	m.byPair[pairKey(studentID, assessmentID)] = a.ID
	return a.clone(), true, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, studentID, assessmentID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(studentID, assessmentID)]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt for student %q on %q: %w", studentID, assessmentID, ErrNotFound)
	}
	return m.attempts[id].clone(), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.AssessmentID != "" && a.AssessmentID != opts.AssessmentID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		h := a.clone()
		h.Asked, h.Answers = nil, nil
		out = append(out, h)
	}
	sortAttempts(out, opts.Sort)
	return page(out, opts.Limit, opts.Offset), nil
}

func sortAttempts(list []Attempt, by string) {
	switch normalizeAttemptSort(by) {
	case "score desc":
		sort.SliceStable(list, func(i, j int) bool { return scoreOf(list[i]) > scoreOf(list[j]) })
	case "ended_at desc":
		sort.SliceStable(list, func(i, j int) bool { return endOf(list[i]).After(endOf(list[j])) })
	default:
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	}
}

func scoreOf(a Attempt) float64 {
	if a.Score == nil {
		return -1
	}
	return *a.Score
}

func endOf(a Attempt) time.Time {
	if a.EndedAt == nil {
		return time.Time{}
	}
	return *a.EndedAt
}

func (m *memoryStore) lookup(attemptID string) (*Attempt, error) {
	a, ok := m.attempts[attemptID]
	if !ok {
		return nil, fmt.Errorf("attempt %q: %w", attemptID, ErrNotFound)
	}
	return a, nil
}

func (m *memoryStore) AppendAsked(_ context.Context, attemptID string, q AskedQuestion, limit int) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.lookup(attemptID)
	if err != nil {
		return Attempt{}, err
	}
	switch {
	case a.Completed():
		return Attempt{}, ErrCompleted
	case limit > 0 && len(a.Asked) >= limit:
		return Attempt{}, ErrQuestionLimit
	case a.HasAsked(q.QuestionID):
		return Attempt{}, ErrAlreadyAsked
	}
	a.Asked = append(a.Asked, q)
	return a.clone(), nil
}

func (m *memoryStore) AppendAnswer(_ context.Context, attemptID string, ans Answer) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.lookup(attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Completed() {
		return Attempt{}, ErrCompleted
	}
	if a.HasAnswered(ans.QuestionID) {
		return Attempt{}, ErrAlreadyAnswered
	}
	a.Answers = append(a.Answers, ans)
	return a.clone(), nil
}

func (m *memoryStore) SaveForm(_ context.Context, attemptID string, questionIDs []string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.lookup(attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if len(a.Form) > 0 {
		return a.clone(), nil
	}
	if a.Completed() {
		return Attempt{}, ErrCompleted
	}
	a.Form = append([]string(nil), questionIDs...)
	return a.clone(), nil
}

func (m *memoryStore) Complete(_ context.Context, attemptID string, endedAt time.Time, grade GradeFunc) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.lookup(attemptID)
	if err != nil {
		return Attempt{}, false, err
	}
	if a.Completed() {
		return a.clone(), false, nil
	}
	score, passed := grade(*a)
	a.Status = StatusCompleted
	a.Score = &score
	a.Passed = passed
	a.EndedAt = &endedAt
	return a.clone(), true, nil
}

// page applies the same limit/offset rules as the SQL store.
func page[T any](list []T, limit, offset int) []T {
	limit, offset = clampPage(limit, offset)
	if offset >= len(list) {
		return list[:0]
	}
	list = list[offset:]
	if limit < len(list) {
		list = list[:limit]
	}
	return list
}
