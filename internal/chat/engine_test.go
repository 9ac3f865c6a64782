package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkio/internal/models"
)

// sentEvent is one router delivery captured by the recording router.
// Target is a connection id, "*" for broadcasts, or "!"+connID for
// broadcasts excluding a connection.
type sentEvent struct {
	target string
	event  string
	data   any
}

type recordingRouter struct {
	events []sentEvent
}

func (r *recordingRouter) ToConn(connID string, event string, data any) {
	r.events = append(r.events, sentEvent{target: connID, event: event, data: data})
}

func (r *recordingRouter) ToConns(connIDs []string, event string, data any) {
	for _, id := range connIDs {
		r.events = append(r.events, sentEvent{target: id, event: event, data: data})
	}
}

func (r *recordingRouter) ToAll(event string, data any) {
	r.events = append(r.events, sentEvent{target: "*", event: event, data: data})
}

func (r *recordingRouter) ToAllExcept(connID string, event string, data any) {
	r.events = append(r.events, sentEvent{target: "!" + connID, event: event, data: data})
}

func (r *recordingRouter) reset() { r.events = nil }

// to returns the events delivered to one target, filtered by event name.
func (r *recordingRouter) to(target, event string) []sentEvent {
	var out []sentEvent
	for _, e := range r.events {
		if e.target == target && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type stubVerifier struct {
	identities map[string]models.Identity
	onVerify   func()
}

func (v *stubVerifier) Verify(_ context.Context, token string) (models.Identity, error) {
	if v.onVerify != nil {
		v.onVerify()
	}
	if identity, ok := v.identities[token]; ok {
		return identity, nil
	}
	return models.Identity{}, errors.New("invalid token")
}

type engineFixture struct {
	engine   *Engine
	router   *recordingRouter
	groups   *GroupDirectory
	sessions *SessionRegistry
	clock    *fakeClock
	verifier *stubVerifier
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	clock := newFakeClock()
	router := &recordingRouter{}
	verifier := &stubVerifier{identities: map[string]models.Identity{
		"alice-token": {Username: "alice", Email: "alice@example.com"},
		"bob-token":   {Username: "bob", Email: "bob@example.com"},
	}}
	sessions := NewSessionRegistry()
	groups := NewGroupDirectory(clock)
	limiter := NewRateLimiter(clock, 30, time.Minute)
	engine := NewEngine(sessions, groups, limiter, verifier, router, 1000)
	return &engineFixture{
		engine:   engine,
		router:   router,
		groups:   groups,
		sessions: sessions,
		clock:    clock,
		verifier: verifier,
	}
}

func (f *engineFixture) connectAuthenticated(t *testing.T, connID, token string) {
	t.Helper()
	f.engine.Connect(connID)
	require.NoError(t, f.engine.Dispatch(context.Background(), connID, AuthenticateEvent{Token: token}))
}

func dispatch(t *testing.T, f *engineFixture, connID string, ev Event) error {
	t.Helper()
	return f.engine.Dispatch(context.Background(), connID, ev)
}

func TestConnectPushesGuestStatusAndCatalog(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.Connect("c1")

	statuses := f.router.to("c1", models.EventAuthStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, models.AuthStatus{IsGuest: true}, statuses[0].data)
	require.Len(t, f.router.to("c1", models.EventAllGroups), 1)
}

func TestPostBeforeAuthenticateRejectedWithoutMutation(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")

	err := dispatch(t, f, "c1", PostMessageEvent{Message: "hello"})

	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, f.groups.History(), "rejected post must not touch any log")
	assert.Empty(t, f.groups.GroupLog(DefaultGroup))
}

func TestAuthenticateValidToken(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{Token: "alice-token"}))

	sess, ok := f.sessions.Get("c1")
	require.True(t, ok)
	assert.Equal(t, StateAuthenticated, sess.State)
	assert.Equal(t, "alice", sess.Username)

	statuses := f.router.to("c1", models.EventAuthStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, models.AuthStatus{IsAuthenticated: true, Username: "alice", Email: "alice@example.com"}, statuses[0].data)

	assert.Equal(t, []string{"c1"}, f.groups.Members(DefaultGroup), "authenticated connection auto-joins General")

	generalLog := f.groups.GroupLog(DefaultGroup)
	require.Len(t, generalLog, 1)
	assert.Equal(t, models.SystemUserJoined, generalLog[0].Event)
	assert.Equal(t, generalLog, f.groups.History(), "joined event also lands in the unified history")

	counts := f.router.to("*", models.EventUserCount)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, counts[0].data)
}

func TestAuthenticateInvalidTokenDegradesToGuest(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{Token: "forged"}))

	sess, ok := f.sessions.Get("c1")
	require.True(t, ok)
	assert.Equal(t, StateGuest, sess.State)
	assert.Empty(t, f.groups.Members(DefaultGroup))
	assert.Empty(t, f.groups.History())

	statuses := f.router.to("c1", models.EventAuthStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, models.AuthStatus{IsGuest: true}, statuses[0].data)
}

func TestAuthenticateWithoutTokenIsGuest(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")

	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{}))

	sess, _ := f.sessions.Get("c1")
	assert.Equal(t, StateGuest, sess.State)
}

func TestReauthenticateDoesNotDuplicateJoin(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")

	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{Token: "alice-token"}))

	joined := 0
	for _, entry := range f.groups.GroupLog(DefaultGroup) {
		if entry.Event == models.SystemUserJoined {
			joined++
		}
	}
	assert.Equal(t, 1, joined, "onboarding runs once per connection")
	assert.Equal(t, []string{"c1"}, f.groups.Members(DefaultGroup))
}

func TestAuthenticateAfterDisconnectIsDiscarded(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")

	// Simulate the connection dropping while verification is in flight.
	f.verifier.onVerify = func() { f.engine.Disconnect("c1") }

	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{Token: "alice-token"}))

	assert.False(t, f.sessions.Live("c1"))
	assert.Empty(t, f.groups.Members(DefaultGroup))
	assert.Empty(t, f.groups.History())
}

func TestPostMessageBroadcasts(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.connectAuthenticated(t, "c2", "bob-token")
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", PostMessageEvent{Message: "hello"}))

	for _, conn := range []string{"c1", "c2"} {
		views := f.router.to(conn, models.EventGroupMessages)
		require.Len(t, views, 1, "every General member receives the group log")
		view := views[0].data.(models.GroupMessages)
		last := view.ChatHistory[len(view.ChatHistory)-1]
		assert.Equal(t, models.TypeMessage, last.Type)
		assert.Equal(t, "alice", last.Username)
		assert.Equal(t, "hello", last.Message)
		assert.Equal(t, DefaultGroup, last.Group)
	}

	feeds := f.router.to("*", models.EventReceiveMessages)
	require.Len(t, feeds, 1, "the unified feed goes to everyone")
}

func TestPostMessageSanitizedEmptyDroppedSilently(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	before := len(f.groups.History())

	err := dispatch(t, f, "c1", PostMessageEvent{Message: "<>"})

	require.NoError(t, err, "empty-after-sanitize is dropped without an error")
	assert.Len(t, f.groups.History(), before)
}

func TestPostMessageTooLong(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")

	err := dispatch(t, f, "c1", PostMessageEvent{Message: strings.Repeat("a", 1001)})

	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestPostMessageRateLimited(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")

	for i := 0; i < 30; i++ {
		require.NoError(t, dispatch(t, f, "c1", PostMessageEvent{Message: "spam"}))
	}
	err := dispatch(t, f, "c1", PostMessageEvent{Message: "one too many"})
	assert.ErrorIs(t, err, ErrRateLimited)

	f.clock.Advance(61 * time.Second)
	assert.NoError(t, dispatch(t, f, "c1", PostMessageEvent{Message: "fresh window"}))
}

func TestJoinGroupTwiceIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")

	require.NoError(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "random"}))
	require.NoError(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "random"}))

	assert.Equal(t, []string{"c1"}, f.groups.Members("random"), "member recorded exactly once")

	joinEvents := 0
	for _, entry := range f.groups.GroupLog("random") {
		if entry.Event == models.SystemUserJoinedGroup {
			joinEvents++
		}
	}
	assert.Equal(t, 1, joinEvents)
}

func TestJoinGroupLazilyCreatesAndBroadcastsCatalog(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "random"}))

	catalogs := f.router.to("*", models.EventAllGroups)
	require.Len(t, catalogs, 1)
	assert.Contains(t, catalogs[0].data, "random")
}

func TestJoinGroupRequiresAuthentication(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	require.NoError(t, dispatch(t, f, "c1", CreateGroupEvent{GroupName: "Team X"}))

	f.engine.Connect("c2") // bob, never authenticates
	err := dispatch(t, f, "c2", JoinGroupEvent{GroupName: "Team X"})

	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, []string{"c1"}, f.groups.Members("Team X"), "member set unchanged")
}

func TestJoinGroupInvalidName(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")

	assert.ErrorIs(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "<>"}), ErrInvalidGroupName)
	assert.ErrorIs(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: strings.Repeat("g", 51)}), ErrInvalidGroupName)
}

func TestLeaveGeneralAlwaysFails(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")

	err := dispatch(t, f, "c1", LeaveGroupEvent{GroupName: DefaultGroup})

	assert.ErrorIs(t, err, ErrCannotLeaveGeneral)
	assert.Equal(t, []string{"c1"}, f.groups.Members(DefaultGroup))
}

func TestLeaveGroupAppendsEventAndNotifies(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.connectAuthenticated(t, "c2", "bob-token")
	require.NoError(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "random"}))
	require.NoError(t, dispatch(t, f, "c2", JoinGroupEvent{GroupName: "random"}))
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", LeaveGroupEvent{GroupName: "random"}))

	assert.Equal(t, []string{"c2"}, f.groups.Members("random"))
	log := f.groups.GroupLog("random")
	assert.Equal(t, models.SystemUserLeftGroup, log[len(log)-1].Event)

	views := f.router.to("c2", models.EventGroupMessages)
	require.Len(t, views, 1, "remaining members see the departure")
}

func TestLeaveGroupNotMemberIsSilent(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.groups.EnsureGroup("random")
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", LeaveGroupEvent{GroupName: "random"}))
	assert.Empty(t, f.router.events)
}

func TestCreateGroup(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", CreateGroupEvent{GroupName: "Team X"}))

	catalogs := f.router.to("*", models.EventAllGroups)
	require.Len(t, catalogs, 1, "catalog goes to every connection, guests included")
	assert.Contains(t, catalogs[0].data, "Team X")

	assert.Equal(t, []string{"c1"}, f.groups.Members("Team X"), "creator auto-joins")
	assert.Empty(t, f.groups.GroupLog("Team X"), "creation logs no system event")
}

func TestCreateGroupDuplicateRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	require.NoError(t, dispatch(t, f, "c1", CreateGroupEvent{GroupName: "Team X"}))

	err := dispatch(t, f, "c1", CreateGroupEvent{GroupName: "Team X"})
	assert.ErrorIs(t, err, ErrGroupAlreadyExists)
}

func TestTypingRelayedToGroupExceptSender(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.connectAuthenticated(t, "c2", "bob-token")
	logBefore := len(f.groups.GroupLog(DefaultGroup))
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", TypingStartEvent{}))

	signals := f.router.to("c2", models.EventUserTyping)
	require.Len(t, signals, 1)
	assert.Equal(t, models.UserTyping{Username: "alice", IsTyping: true, Group: DefaultGroup}, signals[0].data)

	assert.Empty(t, f.router.to("c1", models.EventUserTyping), "sender is excluded")
	assert.Len(t, f.groups.GroupLog(DefaultGroup), logBefore, "typing is never logged")
}

func TestTypingIgnoredForGuests(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")
	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{}))
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c1", TypingStartEvent{}))
	assert.Empty(t, f.router.events)
}

func TestDisconnectTearsDownEverything(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	require.NoError(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "a"}))
	require.NoError(t, dispatch(t, f, "c1", JoinGroupEvent{GroupName: "b"}))
	logA := f.groups.GroupLog("a")
	logB := f.groups.GroupLog("b")
	f.router.reset()

	f.engine.Disconnect("c1")

	assert.Empty(t, f.groups.Members("a"))
	assert.Empty(t, f.groups.Members("b"))
	assert.False(t, f.sessions.Live("c1"))
	assert.Equal(t, logA, f.groups.GroupLog("a"), "only the General departure event is logged")
	assert.Equal(t, logB, f.groups.GroupLog("b"))

	generalLog := f.groups.GroupLog(DefaultGroup)
	assert.Equal(t, models.SystemUserLeft, generalLog[len(generalLog)-1].Event)

	counts := f.router.to("*", models.EventUserCount)
	require.Len(t, counts, 1)
	assert.Equal(t, 0, counts[0].data)
}

func TestGuestDisconnectIsQuiet(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Connect("c1")
	require.NoError(t, dispatch(t, f, "c1", AuthenticateEvent{}))
	f.router.reset()

	f.engine.Disconnect("c1")

	assert.Empty(t, f.router.events, "guest departure broadcasts nothing")
	assert.Empty(t, f.groups.History())
}

func TestMembersObserveIdenticalOrderedLogs(t *testing.T) {
	f := newEngineFixture(t)
	f.connectAuthenticated(t, "c1", "alice-token")
	f.connectAuthenticated(t, "c2", "bob-token")

	require.NoError(t, dispatch(t, f, "c1", PostMessageEvent{Message: "one"}))
	f.clock.Advance(time.Second)
	require.NoError(t, dispatch(t, f, "c2", PostMessageEvent{Message: "two"}))
	f.clock.Advance(time.Second)
	require.NoError(t, dispatch(t, f, "c1", PostMessageEvent{Message: "three"}))
	f.router.reset()

	require.NoError(t, dispatch(t, f, "c2", PostMessageEvent{Message: "four"}))

	viewsC1 := f.router.to("c1", models.EventGroupMessages)
	viewsC2 := f.router.to("c2", models.EventGroupMessages)
	require.Len(t, viewsC1, 1)
	require.Len(t, viewsC2, 1)
	assert.Equal(t, viewsC1[0].data, viewsC2[0].data, "both members see the same view")

	view := viewsC1[0].data.(models.GroupMessages)
	for i := 1; i < len(view.ChatHistory); i++ {
		assert.False(t, view.ChatHistory[i].Timestamp.Before(view.ChatHistory[i-1].Timestamp),
			"log must be chronologically ordered")
	}
}
