package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"wa-sync-service/internal/observability"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishEnvelope(ctx context.Context, env observability.EventEnvelope, headers map[string]string) error {
	args := m.Called(ctx, env, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
