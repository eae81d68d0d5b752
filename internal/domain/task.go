package domain

import (
	"fmt"
	"time"
)

// TaskStatus enumerates the publication task lifecycle.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not-started"
	StatusOngoing    TaskStatus = "ongoing"
	StatusSuccess    TaskStatus = "success"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusOngoing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Predecessors lists the statuses a task may hold right before moving to s.
func (s TaskStatus) Predecessors() []TaskStatus {
	switch s {
	case StatusOngoing:
		return []TaskStatus{StatusNotStarted}
	case StatusSuccess, StatusFailed:
		return []TaskStatus{StatusOngoing}
	}
	return nil
}

// CanTransitionTo reports whether s -> next is an edge of the state machine.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, prev := range next.Predecessors() {
		if prev == s {
			return true
		}
	}
	return false
}

// PublicationTask is a scheduled press release waiting to be sent to the mailing channel.
type PublicationTask struct {
	ID              string
	Graph           string
	PressRelease    string
	Status          TaskStatus
	PublicationDate time.Time
	LastModified    time.Time
}

// Transition moves the task to next, stamping LastModified.
// The task is left untouched when the edge is not allowed.
func (t *PublicationTask) Transition(next TaskStatus, at time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	t.LastModified = at
	return nil
}
