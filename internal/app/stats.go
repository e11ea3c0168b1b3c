package app

import "quizforge/internal/domain"

// ComputeStats derives the aggregate view of a quiz from its raw submission
// set. It keeps no incremental state and is deterministic for the same inputs,
// so it can be re-run at any time.
//
// Zero submissions is the explicit ErrNoSubmissions state; callers render an
// empty view instead of zero-filled figures.
func ComputeStats(quiz domain.Quiz, submissions []domain.QuizSubmission) (domain.QuizStats, error) {
	if len(submissions) == 0 {
		return domain.QuizStats{}, domain.ErrNoSubmissions
	}

	// Every question appears in the performance map even with zero answers.
	performance := make(map[string]domain.QuestionStats, len(quiz.Questions))
	for _, question := range quiz.Questions {
		performance[question.ID] = domain.QuestionStats{}
	}

	totalScore := 0
	highest := submissions[0].Score
	lowest := submissions[0].Score
	for _, submission := range submissions {
		totalScore += submission.Score
		if submission.Score > highest {
			highest = submission.Score
		}
		if submission.Score < lowest {
			lowest = submission.Score
		}
		for _, answer := range submission.Answers {
			stats, ok := performance[answer.QuestionID]
			if !ok {
				// Answer to a question that no longer exists on the quiz.
				continue
			}
			stats.TotalAnswers++
			if answer.IsCorrect {
				stats.CorrectCount++
			}
			performance[answer.QuestionID] = stats
		}
	}

	return domain.QuizStats{
		TotalResponses:      len(submissions),
		AverageScore:        float64(totalScore) / float64(len(submissions)),
		HighestScore:        highest,
		LowestScore:         lowest,
		QuestionPerformance: performance,
	}, nil
}
