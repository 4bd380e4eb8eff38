// Package grounding runs the 5-4-3-2-1 grounding exercise a user walks
// through with an avatar.
package grounding

import (
	"strings"
	"sync"
	"time"

	"github.com/ryosuke1832/remind/internal/apperr"
)

// MaxAnswers caps the answers collected on one step.
const MaxAnswers = 5

// Step is one prompt of the script. Wanted is zero for encouragement steps.
type Step struct {
	Prompt   string  `json:"prompt"`
	Sense    string  `json:"sense,omitempty"`
	Wanted   int     `json:"wanted"`
	Progress float64 `json:"progress"`
}

// Script is the fixed sequence of the exercise.
var Script = []Step{
	{Prompt: "Its OKAY, I Got U", Progress: 0},
	{Prompt: "Now, What are 5 things you can SEE?", Sense: "see", Wanted: 5, Progress: 0.2},
	{Prompt: "Now, Tell me 4 things you can TOUCH?", Sense: "touch", Wanted: 4, Progress: 0.2},
	{Prompt: "You are doing GREAT!!", Progress: 0.4},
	{Prompt: "Now, Tell me 3 things you HEAR?", Sense: "hear", Wanted: 3, Progress: 0.6},
	{Prompt: "Focus on 2 things you can SMELL?", Sense: "smell", Wanted: 2, Progress: 0.8},
	{Prompt: "Now, Tell me 1 thing you can TASTE?", Sense: "taste", Wanted: 1, Progress: 1},
}

// View is the client-facing state of a session.
type View struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"owner_id"`
	AvatarID string    `json:"avatar_id,omitempty"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Step     Step      `json:"step"`
	Answers  []string  `json:"answers"`
	Finished bool      `json:"finished"`
	Started  time.Time `json:"started_at"`
}

// Session is one walk through the script. Answers are kept per step,
// newest first.
type Session struct {
	mu       sync.Mutex
	id       string
	ownerID  string
	avatarID string
	step     int
	answers  [][]string
	finished bool
	started  time.Time
	touched  time.Time
}

func newSession(id, ownerID, avatarID string, now time.Time) *Session {
	return &Session{
		id: id, ownerID: ownerID, avatarID: avatarID,
		answers: make([][]string, len(Script)),
		started: now, touched: now,
	}
}

func (s *Session) ID() string { return s.id }

// Current returns the session view.
func (s *Session) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID: s.id, OwnerID: s.ownerID, AvatarID: s.avatarID,
		Index:    s.step,
		Total:    len(Script),
		Step:     Script[s.step],
		Answers:  append([]string{}, s.answers[s.step]...),
		Finished: s.finished,
		Started:  s.started,
	}
}

// Answer records one answer on the current step.
func (s *Session) Answer(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()

	text = strings.TrimSpace(text)
	switch {
	case s.finished:
		return apperr.NewConflictError("session", "session finished")
	case Script[s.step].Wanted == 0:
		return apperr.NewValidationError("answer", "this step takes no answers")
	case text == "":
		return apperr.NewValidationError("answer", "answer cannot be empty")
	case len(s.answers[s.step]) >= MaxAnswers:
		return apperr.NewValidationError("answer", "you already gave 5 answers")
	}
	s.answers[s.step] = append([]string{text}, s.answers[s.step]...)
	return nil
}

// RemoveAnswer drops the answer at position i of the current step.
func (s *Session) RemoveAnswer(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.answers[s.step]
	if i < 0 || i >= len(cur) {
		return false
	}
	s.answers[s.step] = append(cur[:i:i], cur[i+1:]...)
	return true
}

// ClearStep drops every answer of the current step.
func (s *Session) ClearStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[s.step] = nil
}

// Next advances to the following step. From the last step it finishes the
// session; further calls are no-ops.
func (s *Session) Next() View {
	s.mu.Lock()
	s.touched = time.Now()
	if s.step < len(Script)-1 {
		s.step++
	} else {
		s.finished = true
	}
	s.mu.Unlock()
	return s.Current()
}

// Progress is the fraction shown on the progress bar.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Script[s.step].Progress
}

// Finished reports whether the user completed the last step.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// History returns the answers given on every step.
func (s *Session) History() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.answers))
	for i, a := range s.answers {
		out[i] = append([]string{}, a...)
	}
	return out
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}
