// Package training holds the assignment matching and grading rules.
package training

import (
	"math"
	"strings"

	"peopleops/internal/domain"
)

// IsEligible reports whether identity is targeted by assignment. Department
// and audience must both match.
func IsEligible(a domain.TrainingAssignment, identity domain.Identity) bool {
	deptOK := a.Department == domain.AllDepartments || a.Department == identity.Department
	audienceOK := a.Audience == domain.AllEmployees || a.Audience == identity.Role
	return deptOK && audienceOK
}

// Result is the outcome of grading a submission.
type Result struct {
	Score    int  `json:"score"`
	Passed   bool `json:"passed"`
	Correct  int  `json:"correct"`
	Gradable int  `json:"gradable"`
}

// Graded reports whether any question carried an answer key.
func (r Result) Graded() bool {
	return r.Gradable > 0
}

// Grade scores answers against the assignment's answer keys. Answers are
// keyed by question index. Without gradable questions the result is a zero,
// failing score.
func Grade(a domain.TrainingAssignment, answers map[int]domain.Answer, passingScore int) Result {
	var res Result
	for i, q := range a.Questions {
		if !q.Gradable() {
			continue
		}
		res.Gradable++
		if isCorrect(q, answers[i]) {
			res.Correct++
		}
	}
	if res.Gradable == 0 {
		return Result{}
	}
	res.Score = int(math.Round(100 * float64(res.Correct) / float64(res.Gradable)))
	res.Passed = res.Score >= passingScore
	return res
}

func isCorrect(q domain.Question, submitted domain.Answer) bool {
	expected := *q.CorrectAnswers
	switch q.Type {
	case domain.QuestionMultipleChoice:
		return sameSet(submitted.Values, expected)
	case domain.QuestionShortAnswer:
		got, ok := submitted.Single()
		if !ok {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(first(expected)))
	default:
		got, ok := submitted.Single()
		if !ok {
			return false
		}
		return got == first(expected)
	}
}

func sameSet(got, want []string) bool {
	g := toSet(got)
	w := toSet(want)
	if len(g) != len(w) {
		return false
	}
	for v := range w {
		if _, ok := g[v]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
