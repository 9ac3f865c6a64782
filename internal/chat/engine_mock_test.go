package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"talkio/internal/chat"
	"talkio/internal/mocks"
	"talkio/internal/models"
)

// Mock-based variant of the engine wiring, in the style the HTTP handler
// tests use. The detailed behavior coverage lives in the in-package tests.
func TestEngineWithMockCollaborators(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	router := new(mocks.RouterMock)

	sessions := chat.NewSessionRegistry()
	groups := chat.NewGroupDirectory(chat.SystemClock())
	limiter := chat.NewRateLimiter(chat.SystemClock(), 30, time.Minute)
	engine := chat.NewEngine(sessions, groups, limiter, verifier, router, 1000)

	router.On("ToConn", "c1", mock.Anything, mock.Anything).Return()
	router.On("ToAll", mock.Anything, mock.Anything).Return()
	router.On("ToConns", mock.Anything, mock.Anything, mock.Anything).Return()
	verifier.On("Verify", mock.Anything, "alice-token").
		Return(models.Identity{Username: "alice", Email: "alice@example.com"}, nil).Once()

	engine.Connect("c1")
	require.NoError(t, engine.Dispatch(context.Background(), "c1", chat.AuthenticateEvent{Token: "alice-token"}))
	require.NoError(t, engine.Dispatch(context.Background(), "c1", chat.PostMessageEvent{Message: "hello"}))

	verifier.AssertExpectations(t)
	router.AssertCalled(t, "ToAll", models.EventUserCount, 1)
}
