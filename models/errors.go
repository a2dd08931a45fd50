package models

import "errors"

var (
	// ErrInvalidTransition is returned when a session control action is
	// attempted from a status that does not allow it, or when a stale
	// control write loses an optimistic-concurrency check.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionNotFound is returned when no session holds the given code or id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when joining or submitting against a completed session.
	ErrSessionEnded = errors.New("session has ended")
	// ErrAlreadyAnswered is returned on a duplicate submission for the
	// same (participant, question) pair. The first response stands.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrCodeSpaceExhausted is returned when code generation gives up
	// after too many collisions with live sessions.
	ErrCodeSpaceExhausted = errors.New("session code space exhausted")
	// ErrQuizNotFound indicates the quiz does not exist or is not owned by the caller.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question id is not part of the session's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound indicates an unknown participant id.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrInvalidJoinCode indicates a scanned payload that is neither a
	// join URL nor a bare session code.
	ErrInvalidJoinCode = errors.New("invalid join code")
	// ErrNotSessionOwner is returned when someone other than the
	// creating teacher tries to control a session.
	ErrNotSessionOwner = errors.New("not the session owner")
)
