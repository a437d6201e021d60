package auth

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/utils"
	"marketplace/pkg/apperr"
	"marketplace/pkg/log"
)

// RegisterRequest register request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=64"`
	Role     string `json:"role" binding:"omitempty,oneof=buyer seller"`
}

// LoginRequest login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// AuthService authentication service interface
type AuthService interface {
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)
	Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, req *RefreshRequest) (*TokenResponse, error)
	ValidateToken(token string) (*utils.JWTClaims, error)
}

type authService struct {
	users      repository.UserRepository
	jwtManager *utils.JWTManager
}

// NewAuthService creates an authentication service
func NewAuthService(users repository.UserRepository, jwtManager *utils.JWTManager) AuthService {
	return &authService{
		users:      users,
		jwtManager: jwtManager,
	}
}

// Register registers a user
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	existing, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Database(err)
	}

	role := req.Role
	if role == "" {
		role = model.RoleBuyer
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       model.UserStatusNormal,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	}).Info("user registered")

	return user, nil
}

// Login verifies credentials and issues an access token
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("invalid username or password")
		}
		return nil, err
	}

	if !user.IsActive() {
		return nil, apperr.Forbidden("account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Unauthorized("invalid username or password")
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		log.WithError(err).Warn("failed to update last login time")
	}

	return s.issueTokens(user)
}

// Refresh exchanges a valid refresh token for a fresh token pair. The user row
// is reloaded so a disabled account cannot keep minting access tokens.
func (s *authService) Refresh(ctx context.Context, req *RefreshRequest) (*TokenResponse, error) {
	claims, err := s.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil || claims.TokenType != utils.TokenTypeRefresh {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, apperr.Forbidden("account disabled")
	}

	return s.issueTokens(user)
}

func (s *authService) issueTokens(user *model.User) (*TokenResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, apperr.Database(err)
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, apperr.Database(err)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessExpire().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken parses and validates an access token
func (s *authService) ValidateToken(token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil || claims.TokenType != utils.TokenTypeAccess {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}
