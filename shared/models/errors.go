package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource Errors
	ErrNotFound           = errors.New("resource not found") // story/scene/session/checkpoint absent
	ErrSessionNotFound    = errors.New("session not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// Content Errors (фатальны при загрузке истории, не ретраятся)
	ErrEmptyStory   = errors.New("story has no scenes")
	ErrInvalidGraph = errors.New("story graph is invalid")

	// Gameplay Errors
	ErrInvalidChoice = errors.New("choice does not belong to the scene")
	// ErrStaleScene - сцена запроса не совпадает с текущей сценой сессии.
	// Это штатная ситуация при сетевых ретраях, а не авария: клиенту
	// возвращается текущее состояние, а не ошибка.
	ErrStaleScene    = errors.New("scene does not match current session state")
	ErrNothingToSave = errors.New("no progress to save")

	// Access Errors
	ErrForbidden = errors.New("forbidden")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
