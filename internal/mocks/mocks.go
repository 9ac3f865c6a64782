package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"talkio/internal/chat"
	"talkio/internal/models"
	"talkio/internal/telemetry"
)

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

type RouterMock struct {
	mock.Mock
}

func (m *RouterMock) ToConn(connID string, event string, data any) {
	m.Called(connID, event, data)
}

func (m *RouterMock) ToConns(connIDs []string, event string, data any) {
	m.Called(connIDs, event, data)
}

func (m *RouterMock) ToAll(event string, data any) {
	m.Called(event, data)
}

func (m *RouterMock) ToAllExcept(connID string, event string, data any) {
	m.Called(connID, event, data)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ chat.CredentialVerifier = (*VerifierMock)(nil)
var _ chat.Router = (*RouterMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
