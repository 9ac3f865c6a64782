package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"

	"talkio/internal/models"
)

const maxGroupNameLength = 50

// CredentialVerifier resolves an opaque credential token to an identity.
// Implemented by the credential service; the call may block on external IO.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// Router delivers computed views to one connection or a set of connections.
// Implemented by the websocket hub.
type Router interface {
	ToConn(connID string, event string, data any)
	ToConns(connIDs []string, event string, data any)
	ToAll(event string, data any)
	ToAllExcept(connID string, event string, data any)
}

// Engine is the connection-event state machine. It wires the session
// registry, group directory and rate limiter together and is their sole
// mutator. A single mutex serializes every handler, so log appends are
// totally ordered by the moment each operation completes.
type Engine struct {
	mu            sync.Mutex
	sessions      *SessionRegistry
	groups        *GroupDirectory
	limiter       *RateLimiter
	verifier      CredentialVerifier
	router        Router
	maxMessageLen int
}

// NewEngine constructs the engine from explicitly injected collaborators.
func NewEngine(sessions *SessionRegistry, groups *GroupDirectory, limiter *RateLimiter, verifier CredentialVerifier, router Router, maxMessageLen int) *Engine {
	if maxMessageLen <= 0 {
		maxMessageLen = 1000
	}
	return &Engine{
		sessions:      sessions,
		groups:        groups,
		limiter:       limiter,
		verifier:      verifier,
		router:        router,
		maxMessageLen: maxMessageLen,
	}
}

// Connect registers a new connection. Until it authenticates the client is
// treated as a guest: it gets the guest auth status and the group catalog.
func (e *Engine) Connect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions.Begin(connID)
	e.router.ToConn(connID, models.EventAuthStatus, models.AuthStatus{IsGuest: true})
	e.router.ToConn(connID, models.EventAllGroups, e.groups.Catalog())
}

// Dispatch routes one inbound event to its handler. Returned errors are
// user-facing and reported to the originating connection only; they never
// terminate the connection.
func (e *Engine) Dispatch(ctx context.Context, connID string, ev Event) error {
	switch ev := ev.(type) {
	case AuthenticateEvent:
		return e.authenticate(ctx, connID, ev.Token)
	case PostMessageEvent:
		return e.postMessage(connID, ev)
	case TypingStartEvent:
		return e.typing(connID, ev.Group, true)
	case TypingStopEvent:
		return e.typing(connID, ev.Group, false)
	case JoinGroupEvent:
		return e.joinGroup(connID, ev.GroupName)
	case LeaveGroupEvent:
		return e.leaveGroup(connID, ev.GroupName)
	case CreateGroupEvent:
		return e.createGroup(connID, ev.GroupName)
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}
}

// authenticate resolves the session. The credential verification runs
// before the engine lock is taken: it is the one suspension point, during
// which other connections' events may interleave. The connection's own
// later events cannot overtake it because its read loop is sequential.
func (e *Engine) authenticate(ctx context.Context, connID, token string) error {
	if token == "" {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.becomeGuest(connID)
		return nil
	}

	identity, err := e.verifier.Verify(ctx, token)

	e.mu.Lock()
	defer e.mu.Unlock()

	// The connection may have gone away while the verifier was out; the
	// result is then discarded.
	if !e.sessions.Live(connID) {
		return nil
	}
	if err != nil {
		// Invalid or expired tokens degrade to guest, never error the
		// connection.
		log.Printf("guest connection %s (credential rejected: %v)", connID, err)
		e.becomeGuest(connID)
		return nil
	}

	e.sessions.SetAuthenticated(connID, identity.Username, identity.Email)

	if e.sessions.MarkOnboarded(connID) {
		e.groups.AddMember(connID, DefaultGroup)
		e.groups.Announce(models.SystemUserJoined, identity.Username)
		e.router.ToAll(models.EventReceiveMessages, models.ReceiveMessages{ChatHistory: e.groups.History()})
		e.router.ToAll(models.EventUserCount, e.sessions.AuthenticatedCount())
	}

	e.router.ToConn(connID, models.EventGroupMessages, models.GroupMessages{
		Group:       DefaultGroup,
		ChatHistory: e.groups.GroupLog(DefaultGroup),
	})
	e.router.ToConn(connID, models.EventUserGroups, e.groups.GroupsOf(connID))
	e.router.ToConn(connID, models.EventAllGroups, e.groups.Catalog())
	e.router.ToConn(connID, models.EventAuthStatus, models.AuthStatus{
		IsAuthenticated: true,
		Username:        identity.Username,
		Email:           identity.Email,
	})
	e.router.ToConn(connID, models.EventReceiveMessages, models.ReceiveMessages{
		ChatHistory: e.groups.History(),
		Username:    identity.Username,
	})

	log.Printf("authenticated user %s connected", identity.Username)
	return nil
}

func (e *Engine) becomeGuest(connID string) {
	e.sessions.SetGuest(connID)
	e.router.ToConn(connID, models.EventAuthStatus, models.AuthStatus{IsGuest: true})
	e.router.ToConn(connID, models.EventAllGroups, e.groups.Catalog())
}

func (e *Engine) postMessage(connID string, ev PostMessageEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions.Get(connID)
	if !ok || sess.State != StateAuthenticated {
		return ErrAuthRequired
	}
	if !e.limiter.TryConsume(connID) {
		return ErrRateLimited
	}

	text := Sanitize(ev.Message)
	if text == "" {
		// Dropped silently: nothing worth saying survived sanitization.
		return nil
	}
	if utf8.RuneCountInString(text) > e.maxMessageLen {
		return ErrMessageTooLong
	}

	target := ev.Group
	if target == "" {
		target = DefaultGroup
	}

	e.groups.Post(sess.Username, target, text)
	e.router.ToAll(models.EventReceiveMessages, models.ReceiveMessages{ChatHistory: e.groups.History()})
	e.router.ToConns(e.groups.Members(target), models.EventGroupMessages, models.GroupMessages{
		Group:       target,
		ChatHistory: e.groups.GroupLog(target),
	})
	return nil
}

// typing relays a transient signal to the rest of the target group. Guests
// and unauthenticated connections are silently ignored.
func (e *Engine) typing(connID, groupName string, isTyping bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions.Get(connID)
	if !ok || sess.State != StateAuthenticated {
		return nil
	}

	target := groupName
	if target == "" {
		target = DefaultGroup
	}

	members := lo.Without(e.groups.Members(target), connID)
	e.router.ToConns(members, models.EventUserTyping, models.UserTyping{
		Username: sess.Username,
		IsTyping: isTyping,
		Group:    target,
	})
	// Legacy group-less signal for clients that predate groups.
	e.router.ToAllExcept(connID, models.EventUserTyping, models.UserTyping{
		Username: sess.Username,
		IsTyping: isTyping,
	})
	return nil
}

func (e *Engine) joinGroup(connID, groupName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions.Get(connID)
	if !ok || sess.State != StateAuthenticated {
		return ErrAuthRequired
	}

	name, err := validGroupName(groupName)
	if err != nil {
		return err
	}

	if created := e.groups.EnsureGroup(name); created {
		e.router.ToAll(models.EventAllGroups, e.groups.Catalog())
	}

	alreadyMember, groupLog := e.groups.Join(connID, sess.Username, name)
	e.router.ToConn(connID, models.EventGroupMessages, models.GroupMessages{Group: name, ChatHistory: groupLog})
	e.router.ToConn(connID, models.EventUserGroups, e.groups.GroupsOf(connID))

	if !alreadyMember {
		e.router.ToConns(e.groups.Members(name), models.EventGroupMessages, models.GroupMessages{
			Group:       name,
			ChatHistory: groupLog,
		})
	}
	return nil
}

func (e *Engine) leaveGroup(connID, groupName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions.Get(connID)
	if !ok || sess.State != StateAuthenticated {
		return ErrAuthRequired
	}
	if groupName == "" || groupName == DefaultGroup {
		return ErrCannotLeaveGeneral
	}

	left, err := e.groups.Leave(connID, sess.Username, groupName)
	if err != nil {
		return err
	}
	if !left {
		return nil
	}

	e.router.ToConn(connID, models.EventUserGroups, e.groups.GroupsOf(connID))
	e.router.ToConns(e.groups.Members(groupName), models.EventGroupMessages, models.GroupMessages{
		Group:       groupName,
		ChatHistory: e.groups.GroupLog(groupName),
	})
	return nil
}

func (e *Engine) createGroup(connID, groupName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions.Get(connID)
	if !ok || sess.State != StateAuthenticated {
		return ErrAuthRequired
	}

	name, err := validGroupName(groupName)
	if err != nil {
		return err
	}
	if e.groups.Exists(name) {
		return ErrGroupAlreadyExists
	}

	e.groups.EnsureGroup(name)
	e.groups.AddMember(connID, name)

	e.router.ToAll(models.EventAllGroups, e.groups.Catalog())
	e.router.ToConn(connID, models.EventUserGroups, e.groups.GroupsOf(connID))
	e.router.ToConn(connID, models.EventGroupMessages, models.GroupMessages{
		Group:       name,
		ChatHistory: e.groups.GroupLog(name),
	})
	return nil
}

// Disconnect tears the connection down: every membership edge, the session
// and the rate window. This is the only place state is destroyed.
func (e *Engine) Disconnect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions.Get(connID)
	e.groups.RemoveConnection(connID)
	e.sessions.Drop(connID)
	e.limiter.Forget(connID)

	if !ok || sess.State != StateAuthenticated {
		log.Printf("guest connection %s disconnected", connID)
		return
	}

	e.groups.Announce(models.SystemUserLeft, sess.Username)
	e.router.ToAll(models.EventReceiveMessages, models.ReceiveMessages{ChatHistory: e.groups.History()})
	e.router.ToAll(models.EventUserCount, e.sessions.AuthenticatedCount())
	e.router.ToConns(e.groups.Members(DefaultGroup), models.EventGroupMessages, models.GroupMessages{
		Group:       DefaultGroup,
		ChatHistory: e.groups.GroupLog(DefaultGroup),
	})

	log.Printf("%s disconnected", sess.Username)
}

func validGroupName(raw string) (string, error) {
	name := Sanitize(raw)
	if name == "" || utf8.RuneCountInString(name) > maxGroupNameLength {
		return "", ErrInvalidGroupName
	}
	return name, nil
}
