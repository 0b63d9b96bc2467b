// Package grading scores multiple-choice attempts against an answer key.
package grading

import (
	"math"
	"sort"

	"github.com/mind-engage/mindengage-exams/internal/errs"
)

// Answer is one submitted choice.
type Answer struct {
	QuestionID    string
	SelectedIndex int
}

// Key is the correct option of a question and its weight.
type Key struct {
	CorrectIndex int
	Points       float64
}

type AnswerResult struct {
	QuestionID    string
	SelectedIndex int
	Correct       bool
	Score         float64
}

type Result struct {
	PerAnswer      []AnswerResult
	CorrectCount   int
	TotalQuestions int
	TotalScore     int // 0..100
}

type Option func(*config)

type config struct {
	weighted bool
}

// WithWeights scores each question by its Key.Points instead of 1.
func WithWeights(b bool) Option { return func(c *config) { c.weighted = b } }

// Score grades answers against key.
//
// Answers for questions missing from key are dropped. Questions in key with no
// answer count as wrong. A question answered twice is a validation error.
func Score(answers []Answer, key map[string]Key, opts ...Option) (Result, error) {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	seen := make(map[string]struct{}, len(answers))
	correct := make(map[string]bool, len(answers))
	res := Result{TotalQuestions: len(key), PerAnswer: make([]AnswerResult, 0, len(answers))}
	for _, a := range answers {
		k, ok := key[a.QuestionID]
		if !ok {
			continue
		}
		if _, dup := seen[a.QuestionID]; dup {
			return Result{}, errs.NewValidation("duplicate answer", map[string]string{
				"answers": "question " + a.QuestionID + " answered more than once",
			})
		}
		seen[a.QuestionID] = struct{}{}

		ar := AnswerResult{QuestionID: a.QuestionID, SelectedIndex: a.SelectedIndex}
		if a.SelectedIndex == k.CorrectIndex {
			ar.Correct = true
			ar.Score = cfg.weight(k)
			res.CorrectCount++
			correct[a.QuestionID] = true
		}
		res.PerAnswer = append(res.PerAnswer, ar)
	}

	// sum in a fixed order so float results do not depend on input order
	ids := make([]string, 0, len(key))
	for id := range key {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	earned, possible := 0.0, 0.0
	for _, id := range ids {
		w := cfg.weight(key[id])
		possible += w
		if correct[id] {
			earned += w
		}
	}
	res.TotalScore = percent(earned, possible)
	return res, nil
}

func (c *config) weight(k Key) float64 {
	if !c.weighted {
		return 1
	}
	if k.Points <= 0 {
		return 1
	}
	return k.Points
}

func percent(earned, possible float64) int {
	if possible <= 0 {
		return 0
	}
	p := int(math.Round(100 * earned / possible))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Best returns the highest of scores, and false when there are none.
func Best(scores []int) (int, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}
	return best, true
}
