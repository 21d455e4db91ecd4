package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// lockRow is appended to the attempt read inside append transactions.
// SQLite serializes writers on its single connection instead.
func (s *SQLStore) lockRow() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func (s *SQLStore) PutAssessment(ctx context.Context, a Assessment) error {
	qj, err := json.Marshal(a.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments
		(id,code,title,description,level,duration_sec,pass_score,questions_to_attempt,total_questions,questions_json,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET code=EXCLUDED.code, title=EXCLUDED.title, description=EXCLUDED.description,
			level=EXCLUDED.level, duration_sec=EXCLUDED.duration_sec, pass_score=EXCLUDED.pass_score,
			questions_to_attempt=EXCLUDED.questions_to_attempt, total_questions=EXCLUDED.total_questions,
			questions_json=EXCLUDED.questions_json`,
		a.ID, a.Code, a.Title, a.Description, a.Level, a.DurationSec, a.PassScore, a.QuestionsToAttempt,
		len(a.Questions), string(qj), a.CreatedBy, a.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	return err
}

const assessmentCols = `id,code,title,description,level,duration_sec,pass_score,questions_to_attempt,questions_json,created_by,created_at`

func scanAssessment(row interface{ Scan(...any) error }) (Assessment, error) {
	var a Assessment
	var qjson string
	var created int64
	if err := row.Scan(&a.ID, &a.Code, &a.Title, &a.Description, &a.Level, &a.DurationSec, &a.PassScore,
		&a.QuestionsToAttempt, &qjson, &a.CreatedBy, &created); err != nil {
		return Assessment{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &a.Questions); err != nil {
		return Assessment{}, fmt.Errorf("decode question bank of %s: %w", a.ID, err)
	}
	a.CreatedAt = fromNanos(created)
	return a, nil
}

func (s *SQLStore) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	a, err := scanAssessment(s.db.QueryRowContext(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, fmt.Errorf("assessment %q: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) GetAssessmentByCode(ctx context.Context, code string) (Assessment, error) {
	a, err := scanAssessment(s.db.QueryRowContext(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE code=$1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, fmt.Errorf("assessment code %q: %w", code, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) ListAssessments(ctx context.Context, opts ListOpts) ([]AssessmentSummary, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("(LOWER(a.title) LIKE $%d OR LOWER(a.code) LIKE $%d)", len(args), len(args)))
	}
	if opts.CreatedBy != "" {
		args = append(args, opts.CreatedBy)
		where = append(where, fmt.Sprintf("a.created_by = $%d", len(args)))
	}
	query := `SELECT a.id,a.code,a.title,a.level,a.duration_sec,a.pass_score,a.total_questions,a.questions_to_attempt,a.created_by,a.created_at,
		(SELECT COUNT(*) FROM attempts t WHERE t.assessment_id = a.id AND t.status = 'completed')
		FROM assessments a`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := clampPage(opts.Limit, opts.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]AssessmentSummary, 0)
	for rows.Next() {
		var sum AssessmentSummary
		var created int64
		if err := rows.Scan(&sum.ID, &sum.Code, &sum.Title, &sum.Level, &sum.DurationSec, &sum.PassScore,
			&sum.TotalQuestions, &sum.QuestionsToAttempt, &sum.CreatedBy, &created, &sum.CompletedAttempts); err != nil {
			return nil, err
		}
		sum.CreatedAt = fromNanos(created)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutStudent(ctx context.Context, st Student) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO students (id,full_name,email) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET full_name=EXCLUDED.full_name, email=EXCLUDED.email`,
		st.ID, st.FullName, st.Email)
	return err
}

func (s *SQLStore) GetStudent(ctx context.Context, id string) (Student, error) {
	var st Student
	err := s.db.QueryRowContext(ctx, `SELECT id,full_name,email FROM students WHERE id=$1`, id).
		Scan(&st.ID, &st.FullName, &st.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, fmt.Errorf("student %q: %w", id, ErrNotFound)
	}
	return st, err
}

func (s *SQLStore) EnsureAttempt(ctx context.Context, studentID, assessmentID string, now time.Time) (Attempt, bool, error) {
	var exist int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM assessments WHERE id=$1`, assessmentID).Scan(&exist); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, false, fmt.Errorf("assessment %q: %w", assessmentID, ErrNotFound)
		}
		return Attempt{}, false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO attempts (id,student_id,assessment_id,status,started_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (student_id, assessment_id) DO NOTHING`,
		uuid.NewString(), studentID, assessmentID, string(StatusInProgress), now.UnixNano())
	if err != nil {
		return Attempt{}, false, err
	}
	n, _ := res.RowsAffected()
	a, err := s.GetAttempt(ctx, studentID, assessmentID)
	return a, n == 1, err
}

const attemptCols = `id,student_id,assessment_id,status,started_at,ended_at,score,passed,form_json`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var (
		a       Attempt
		status  string
		started int64
		ended   sql.NullInt64
		score   sql.NullFloat64
		form    string
	)
	if err := row.Scan(&a.ID, &a.StudentID, &a.AssessmentID, &status, &started, &ended, &score, &a.Passed, &form); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = fromNanos(started)
	if ended.Valid {
		t := fromNanos(ended.Int64)
		a.EndedAt = &t
	}
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if form != "" {
		if err := json.Unmarshal([]byte(form), &a.Form); err != nil {
			return Attempt{}, fmt.Errorf("decode form of attempt %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, studentID, assessmentID string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE student_id=$1 AND assessment_id=$2`, studentID, assessmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt for student %q on %q: %w", studentID, assessmentID, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, err
	}
	return a, s.loadLog(ctx, s.db, &a)
}

func (s *SQLStore) getAttemptByID(ctx context.Context, q querier, id string) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, err
	}
	return a, s.loadLog(ctx, q, &a)
}

// loadLog fills the ordered asked/answer logs of a.
func (s *SQLStore) loadLog(ctx context.Context, q querier, a *Attempt) error {
	rows, err := q.QueryContext(ctx,
		`SELECT question_id,difficulty,asked_at FROM attempt_asked WHERE attempt_id=$1 ORDER BY seq`, a.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var aq AskedQuestion
		var at int64
		if err := rows.Scan(&aq.QuestionID, &aq.Difficulty, &at); err != nil {
			rows.Close()
			return err
		}
		aq.AskedAt = fromNanos(at)
		a.Asked = append(a.Asked, aq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT question_id,selected_option,correct,difficulty,answered_at FROM attempt_answers WHERE attempt_id=$1 ORDER BY seq`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ans Answer
		var at int64
		if err := rows.Scan(&ans.QuestionID, &ans.SelectedOption, &ans.Correct, &ans.Difficulty, &at); err != nil {
			return err
		}
		ans.AnsweredAt = fromNanos(at)
		a.Answers = append(a.Answers, ans)
	}
	return rows.Err()
}

// ListAttempts returns attempt headers; the asked/answer logs are not loaded.
func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if opts.AssessmentID != "" {
		args = append(args, opts.AssessmentID)
		where = append(where, fmt.Sprintf("assessment_id = $%d", len(args)))
	}
	if opts.StudentID != "" {
		args = append(args, opts.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch normalizeAttemptSort(opts.Sort) {
	case "score desc":
		query += " ORDER BY COALESCE(score, -1) DESC, started_at DESC"
	case "ended_at desc":
		query += " ORDER BY COALESCE(ended_at, 0) DESC"
	default:
		query += " ORDER BY started_at DESC"
	}
	limit, offset := clampPage(opts.Limit, opts.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// inAttemptTx runs fn inside a transaction holding the attempt row, then
// returns the attempt as committed.
func (s *SQLStore) inAttemptTx(ctx context.Context, attemptID string, fn func(tx *sql.Tx, status Status) error) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM attempts WHERE id=$1`+s.lockRow(), attemptID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %q: %w", attemptID, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, err
	}
	if err := fn(tx, Status(status)); err != nil {
		return Attempt{}, err
	}
	a, err := s.getAttemptByID(ctx, tx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) AppendAsked(ctx context.Context, attemptID string, q AskedQuestion, limit int) (Attempt, error) {
	return s.inAttemptTx(ctx, attemptID, func(tx *sql.Tx, status Status) error {
		if status == StatusCompleted {
			return ErrCompleted
		}
		if limit > 0 {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempt_asked WHERE attempt_id=$1`, attemptID).Scan(&n); err != nil {
				return err
			}
			if n >= limit {
				return ErrQuestionLimit
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO attempt_asked (attempt_id,question_id,difficulty,asked_at) VALUES ($1,$2,$3,$4)`,
			attemptID, q.QuestionID, q.Difficulty, q.AskedAt.UnixNano())
		if isUniqueViolation(err) {
			return ErrAlreadyAsked
		}
		return err
	})
}

func (s *SQLStore) AppendAnswer(ctx context.Context, attemptID string, ans Answer) (Attempt, error) {
	return s.inAttemptTx(ctx, attemptID, func(tx *sql.Tx, status Status) error {
		if status == StatusCompleted {
			return ErrCompleted
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO attempt_answers (attempt_id,question_id,selected_option,correct,difficulty,answered_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			attemptID, ans.QuestionID, ans.SelectedOption, ans.Correct, ans.Difficulty, ans.AnsweredAt.UnixNano())
		if isUniqueViolation(err) {
			return ErrAlreadyAnswered
		}
		return err
	})
}

func (s *SQLStore) SaveForm(ctx context.Context, attemptID string, questionIDs []string) (Attempt, error) {
	buf, err := json.Marshal(questionIDs)
	if err != nil {
		return Attempt{}, err
	}
	return s.inAttemptTx(ctx, attemptID, func(tx *sql.Tx, status Status) error {
		var form string
		if err := tx.QueryRowContext(ctx, `SELECT form_json FROM attempts WHERE id=$1`, attemptID).Scan(&form); err != nil {
			return err
		}
		if form != "" {
			return nil
		}
		if status == StatusCompleted {
			return ErrCompleted
		}
		_, err := tx.ExecContext(ctx, `UPDATE attempts SET form_json=$1 WHERE id=$2`, string(buf), attemptID)
		return err
	})
}

func (s *SQLStore) Complete(ctx context.Context, attemptID string, endedAt time.Time, grade GradeFunc) (Attempt, bool, error) {
	var sealed bool
	a, err := s.inAttemptTx(ctx, attemptID, func(tx *sql.Tx, status Status) error {
		if status == StatusCompleted {
			return nil
		}
		cur, err := s.getAttemptByID(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		score, passed := grade(cur)
		res, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, score=$2, passed=$3, ended_at=$4
			WHERE id=$5 AND status=$6`,
			string(StatusCompleted), score, passed, endedAt.UnixNano(), attemptID, string(StatusInProgress))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		sealed = n == 1
		return nil
	})
	return a, sealed, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") // sqlite
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func normalizeAttemptSort(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "score", "score desc", "score_desc":
		return "score desc"
	case "ended_at", "ended_at desc", "ended_at_desc":
		return "ended_at desc"
	default:
		return "started_at desc"
	}
}
