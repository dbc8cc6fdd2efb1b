package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/platform"
)

type DispatcherMock struct {
	mock.Mock
}

func (m *DispatcherMock) Dispatch(ctx context.Context, ev models.CanonicalEvent) {
	m.Called(ctx, ev)
}

type MessageSenderMock struct {
	mock.Mock
}

func (m *MessageSenderMock) SendMessage(to, body string, options map[string]string) error {
	args := m.Called(to, body, options)
	return args.Error(0)
}

func (m *MessageSenderMock) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

type GroupRefresherMock struct {
	mock.Mock
}

func (m *GroupRefresherMock) ReconcileAll(ctx context.Context, instance string, groupJIDs []string) (int, int) {
	args := m.Called(ctx, instance, groupJIDs)
	return args.Int(0), args.Int(1)
}

type StatusFetcherMock struct {
	mock.Mock
}

func (m *StatusFetcherMock) ConnectionState(ctx context.Context, instance string) (platform.InstanceStatus, error) {
	args := m.Called(ctx, instance)
	var status platform.InstanceStatus
	if val := args.Get(0); val != nil {
		status = val.(platform.InstanceStatus)
	}
	return status, args.Error(1)
}

func (m *StatusFetcherMock) Connect(ctx context.Context, instance string) (platform.PairingInfo, error) {
	args := m.Called(ctx, instance)
	var info platform.PairingInfo
	if val := args.Get(0); val != nil {
		info = val.(platform.PairingInfo)
	}
	return info, args.Error(1)
}

type InstanceRepositoryMock struct {
	mock.Mock
}

func (m *InstanceRepositoryMock) UpsertConnectionState(ctx context.Context, name, state string, connectedAt *time.Time) error {
	args := m.Called(ctx, name, state, connectedAt)
	return args.Error(0)
}

func (m *InstanceRepositoryMock) GetInstance(ctx context.Context, name string) (models.Instance, error) {
	args := m.Called(ctx, name)
	var instance models.Instance
	if val := args.Get(0); val != nil {
		instance = val.(models.Instance)
	}
	return instance, args.Error(1)
}
