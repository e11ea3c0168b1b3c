package domain

import "time"

const (
	// MinOptions and MaxOptions bound the option list of a question.
	MinOptions = 2
	MaxOptions = 6

	// UnansweredOption is the sentinel for a question the respondent skipped.
	UnansweredOption = -1
)

// Question models an MCQ item with exactly one correct option.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

// RemoveOption drops the option at index i and re-points CorrectOption.
// If the removed option was the correct one, correctness resets to option 0.
func (q *Question) RemoveOption(i int) {
	if i < 0 || i >= len(q.Options) {
		return
	}
	q.Options = append(q.Options[:i], q.Options[i+1:]...)
	switch {
	case q.CorrectOption == i:
		q.CorrectOption = 0
	case q.CorrectOption > i:
		q.CorrectOption--
	}
}

// Quiz is a titled, ordered set of questions owned by one creator.
type Quiz struct {
	ID          string     `json:"id"`
	CreatedBy   string     `json:"createdBy"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	Questions   []Question `json:"questions"`
	IsPublished bool       `json:"isPublished"`
	Responses   int        `json:"responses"`
}

// StudentAnswer is one graded answer within a submission.
type StudentAnswer struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	IsCorrect      bool   `json:"isCorrect"`
}

// QuizSubmission is one respondent's completed attempt. Immutable once stored.
type QuizSubmission struct {
	ID             string          `json:"id"`
	QuizID         string          `json:"quizId"`
	SubmittedAt    time.Time       `json:"submittedAt"`
	StudentName    string          `json:"studentName"`
	Answers        []StudentAnswer `json:"answers"`
	Score          int             `json:"score"`
	TotalQuestions int             `json:"totalQuestions"`
}

// QuestionStats aggregates answers to one question across submissions.
type QuestionStats struct {
	CorrectCount int `json:"correctCount"`
	TotalAnswers int `json:"totalAnswers"`
}

// QuizStats is the derived aggregate over a quiz's submissions. Never persisted;
// recomputed from the raw submission set on demand.
type QuizStats struct {
	TotalResponses      int                      `json:"totalResponses"`
	AverageScore        float64                  `json:"averageScore"`
	HighestScore        int                      `json:"highestScore"`
	LowestScore         int                      `json:"lowestScore"`
	QuestionPerformance map[string]QuestionStats `json:"questionPerformance"`
}

// User is a registered quiz creator. Respondents are anonymous and never get a
// User record.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
