package mocks

import (
	"context"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of queue.Queue.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, msg models.StepMessage) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}

// MockScheduler is a mock implementation of scheduler.Scheduler.
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleResume(ctx context.Context, msg models.StepMessage, resumeAt time.Time) error {
	args := m.Called(ctx, msg, resumeAt)

	return args.Error(0)
}
