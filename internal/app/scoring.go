package app

import (
	"fmt"

	"quizforge/internal/domain"
)

// ScoreAttempt grades an ordered selection vector against a quiz's questions.
// It returns one graded answer per question and the overall score (count of
// correct answers). The function is pure; persisting the resulting submission
// is the caller's job.
//
// An attempt with a missing selection (the -1 sentinel) or the wrong number of
// selections is refused with ErrIncompleteAttempt rather than scored as wrong.
func ScoreAttempt(questions []domain.Question, selections []int) ([]domain.StudentAnswer, int, error) {
	if len(selections) != len(questions) {
		return nil, 0, domain.ErrIncompleteAttempt
	}

	answers := make([]domain.StudentAnswer, 0, len(questions))
	score := 0
	for i, question := range questions {
		selected := selections[i]
		if selected < 0 {
			return nil, 0, domain.ErrIncompleteAttempt
		}
		if selected >= len(question.Options) {
			return nil, 0, &domain.ValidationError{
				Problems: []string{fmt.Sprintf("question %d: selected option %d out of range", i+1, selected)},
			}
		}
		correct := selected == question.CorrectOption
		if correct {
			score++
		}
		answers = append(answers, domain.StudentAnswer{
			QuestionID:     question.ID,
			SelectedOption: selected,
			IsCorrect:      correct,
		})
	}
	return answers, score, nil
}
