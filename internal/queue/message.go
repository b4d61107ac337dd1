package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"autosurvey-backend/internal/roster"
)

// Task names one unit of automation work.
type Task string

const (
	TaskBatchAttendance    Task = "batch_attendance"
	TaskBatchQuiz          Task = "batch_quiz"
	TaskPersonalAttendance Task = "personal_attendance"
	TaskPersonalQuiz       Task = "personal_quiz"
)

// MessageVersion is written into every message this build enqueues.
const MessageVersion = 1

var (
	ErrMissingJobID    = errors.New("missing job id")
	ErrUnknownTask     = errors.New("unknown task")
	ErrMissingURL      = errors.New("missing url")
	ErrMissingPersonal = errors.New("missing personal info")
)

// ParseTask accepts a task name as typed on the command line or sent by the API.
func ParseTask(raw string) (Task, error) {
	t := Task(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, raw)
	}
	return t, nil
}

func (t Task) Valid() bool {
	switch t {
	case TaskBatchAttendance, TaskBatchQuiz, TaskPersonalAttendance, TaskPersonalQuiz:
		return true
	}
	return false
}

// Personal reports whether the task fills a single participant.
func (t Task) Personal() bool {
	return t == TaskPersonalAttendance || t == TaskPersonalQuiz
}

// Quiz reports whether the task answers a quiz.
func (t Task) Quiz() bool {
	return t == TaskBatchQuiz || t == TaskPersonalQuiz
}

// Message is the payload sent to queue consumers.
type Message struct {
	JobID      string              `json:"jobId"`
	Task       Task                `json:"task"`
	URL        string              `json:"url"`
	Personal   *roster.Participant `json:"personal,omitempty"`
	RequestID  string              `json:"requestId,omitempty"`
	EnqueuedAt string              `json:"enqueuedAt"`
	Version    int                 `json:"version"`
}

// Validate checks that the message names a job the worker can run.
func (m Message) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return ErrMissingJobID
	}
	if !m.Task.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTask, m.Task)
	}
	if strings.TrimSpace(m.URL) == "" {
		return ErrMissingURL
	}
	if m.Task.Personal() {
		if m.Personal == nil {
			return ErrMissingPersonal
		}
		if err := m.Personal.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
