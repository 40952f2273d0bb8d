package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flicky/agrichain-api/internal/dto"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
	"github.com/flicky/agrichain-api/internal/session"
)

// IdentityService resolves users by (email, role) and issues revocable sessions.
// There is no credential check.
type IdentityService struct {
	userRepo  repository.UserRepository
	sessions  session.Store
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewIdentityService(userRepo repository.UserRepository, sessions session.Store, jwtSecret string, jwtExpiry time.Duration) *IdentityService {
	return &IdentityService{
		userRepo: userRepo, sessions: sessions,
		jwtSecret: []byte(jwtSecret), jwtExpiry: jwtExpiry, now: time.Now,
	}
}

type sessionClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

func (s *IdentityService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}

	wallet, err := newWalletID()
	if err != nil {
		return nil, fmt.Errorf("generate wallet: %w", err)
	}
	user := &model.User{Name: name, Email: email, Role: req.Role, WalletID: wallet}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.openSession(ctx, user)
}

func (s *IdentityService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.userRepo.FindByEmailAndRole(ctx, normalizeEmail(req.Email), req.Role)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no %s registered as %s", ErrNotFound, req.Role, req.Email)
	}
	return s.openSession(ctx, user)
}

// CurrentUser returns the user behind a live session token.
func (s *IdentityService) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	sid, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed session id", ErrUnauthenticated)
	}
	active, err := s.sessions.Active(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !active {
		return nil, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrUnauthenticated)
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user no longer exists", ErrUnauthenticated)
	}
	return user, nil
}

// Logout revokes the token's session. Revoking twice is not an error.
func (s *IdentityService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	sid, err := uuid.Parse(claims.ID)
	if err != nil {
		return fmt.Errorf("%w: malformed session id", ErrUnauthenticated)
	}
	return s.sessions.Revoke(ctx, sid)
}

func (s *IdentityService) openSession(ctx context.Context, user *model.User) (*dto.AuthResponse, error) {
	now := s.now()
	sess := model.Session{
		ID: uuid.New(), UserID: user.ID, Role: user.Role,
		IssuedAt: now, ExpiresAt: now.Add(s.jwtExpiry),
	}
	claims := sessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID.String(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	sess.Token = token
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &dto.AuthResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: toUserResponse(user)}, nil
}

func (s *IdentityService) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	return claims, nil
}

func newWalletID() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID: user.ID, Name: user.Name, Email: user.Email,
		Role: user.Role, WalletID: user.WalletID,
	}
}
