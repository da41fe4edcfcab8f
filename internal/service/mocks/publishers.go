package mocks

import (
	"context"

	"storyplay-server/shared/models"

	"github.com/stretchr/testify/mock"
)

// Mock SessionUpdatePublisher
type SessionUpdatePublisher struct {
	mock.Mock
}

func (m *SessionUpdatePublisher) PublishSessionUpdate(ctx context.Context, update models.SessionUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}
