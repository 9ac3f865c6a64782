package auth

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"

	"talkio/internal/chat"
	"talkio/internal/models"
)

var (
	// ErrConflict rejects a signup whose username or email is taken.
	ErrConflict = errors.New("username or email already exists")
	// ErrInvalidCredentials rejects a login. Deliberately generic to
	// prevent user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken rejects an unverifiable or expired credential token.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError reports a malformed signup/login field with a
// user-facing message.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// SignupRequest carries the signup fields.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Service is the credential collaborator: identity registration, login and
// token verification. It also implements the engine's CredentialVerifier.
type Service struct {
	store    *Store
	tokens   *TokenIssuer
	validate *validator.Validate
}

// NewService constructs the service.
func NewService(store *Store, tokens *TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens, validate: validator.New()}
}

// Register creates an identity and returns it with a fresh token.
func (s *Service) Register(req SignupRequest) (models.Identity, string, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Identity{}, "", &ValidationError{msg: validationMessage(err)}
	}

	username := chat.Sanitize(req.Username)
	hash, err := HashPassword(req.Password)
	if err != nil {
		return models.Identity{}, "", err
	}

	if err := s.store.Create(User{Username: username, Email: req.Email, PasswordHash: hash}); err != nil {
		return models.Identity{}, "", err
	}

	identity := models.Identity{Username: username, Email: normalizedEmail(req.Email)}
	token, err := s.tokens.Issue(identity)
	if err != nil {
		return models.Identity{}, "", err
	}

	log.Printf("registered user %s", identity.Username)
	return identity, token, nil
}

// Login authenticates by email or username and returns a fresh token.
func (s *Service) Login(emailOrUsername, password string) (models.Identity, string, error) {
	if emailOrUsername == "" || password == "" {
		return models.Identity{}, "", &ValidationError{msg: "Email/username and password are required"}
	}

	user, ok := s.store.ByEmailOrUsername(emailOrUsername)
	if !ok || !ComparePassword(password, user.PasswordHash) {
		return models.Identity{}, "", ErrInvalidCredentials
	}

	identity := models.Identity{Username: user.Username, Email: user.Email}
	token, err := s.tokens.Issue(identity)
	if err != nil {
		return models.Identity{}, "", err
	}
	return identity, token, nil
}

// Verify resolves a token to a known identity. Unknown identities are as
// invalid as bad signatures.
func (s *Service) Verify(ctx context.Context, token string) (models.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return models.Identity{}, ErrInvalidToken
	}

	user, ok := s.store.ByEmail(claims.Email)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	return models.Identity{Username: user.Username, Email: user.Email}, nil
}

var _ chat.CredentialVerifier = (*Service)(nil)

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch first := verrs[0]; first.Field() {
		case "Username":
			if first.Tag() == "required" {
				return "Username, email, and password are required"
			}
			return "Username must be 3-30 characters"
		case "Email":
			if first.Tag() == "required" {
				return "Username, email, and password are required"
			}
			return "Invalid email format"
		case "Password":
			if first.Tag() == "required" {
				return "Username, email, and password are required"
			}
			return "Password must be at least 6 characters"
		}
	}
	return "Username, email, and password are required"
}

func normalizedEmail(email string) string {
	return strings.ToLower(email)
}
