package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// refreshTokenBytes is the entropy of a refresh token before hex encoding.
const refreshTokenBytes = 40

type AuthService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.RefreshTokenRepository
	cfg       *config.Config
	logger    *zap.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, tokenRepo repository.RefreshTokenRepository, cfg *config.Config, logger *zap.Logger, rec metrics.Recorder) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		cfg:       cfg,
		logger:    logger.Named("auth"),
		metrics:   rec,
		now:       time.Now,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// Claims are embedded in every access token. Subject carries the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	exists, err := s.userRepo.ExistsByUsernameOrEmail(ctx, input.Username, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, domain.ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     input.Username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))

	return s.Issue(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrInvalidCredential
	}

	return s.Issue(ctx, user)
}

// Issue signs a fresh access token for user and stores a new refresh token.
func (s *AuthService) Issue(ctx context.Context, user *domain.User) (*AuthResult, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	record := &domain.RefreshToken{
		ID:        uuid.New(),
		Token:     refreshToken,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Rotate consumes a refresh token and issues a new pair. The record is
// removed by the same statement that finds it, so a token can be rotated at
// most once even under concurrent use. Failures wrap
// domain.ErrInvalidCredential; the caller has to log in again.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		s.metrics.TokenRotation("not_found")
		return nil, domain.ErrTokenNotFound
	}

	record, err := s.tokenRepo.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.TokenRotation("not_found")
			s.logger.Info("refresh rejected: unknown or already used token")
			return nil, domain.ErrTokenNotFound
		}
		s.metrics.TokenRotation("error")
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	if record.Expired(s.now()) {
		s.metrics.TokenRotation("expired")
		s.logger.Info("refresh rejected: expired token",
			zap.String("user_id", record.UserID.String()),
			zap.Time("expires_at", record.ExpiresAt))
		return nil, domain.ErrTokenExpired
	}

	user, err := s.userRepo.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.TokenRotation("not_found")
			return nil, domain.ErrTokenNotFound
		}
		s.metrics.TokenRotation("error")
		return nil, fmt.Errorf("load token owner: %w", err)
	}

	result, err := s.Issue(ctx, user)
	if err != nil {
		s.metrics.TokenRotation("error")
		return nil, err
	}
	s.metrics.TokenRotation("ok")
	return result, nil
}

// Revoke deletes the refresh token. Unknown tokens are not an error.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) error {
	existed, err := s.tokenRepo.DeleteByToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !existed {
		s.logger.Debug("revoke of unknown refresh token")
	}
	return nil
}

// Logout revokes the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.Revoke(ctx, refreshToken)
}

// LogoutAll revokes every refresh token the user holds.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	n, err := s.tokenRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	s.logger.Info("revoked all refresh tokens", zap.String("user_id", userID.String()), zap.Int64("count", n))
	return nil
}

// PurgeExpired removes refresh tokens past expiry. Rotation checks expiry on
// its own, so this only reclaims space.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokenRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	return n, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, domain.ErrInvalidCredential
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject: %w", domain.ErrInvalidCredential, err)
	}
	return claims, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *AuthService) generateAccessToken(user *domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func generateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
