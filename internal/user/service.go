package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors mapped onto HTTP codes by the handler
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenReused  = errors.New("refresh token is expired or used")
	ErrImageUpload         = errors.New("failed to upload profile image")
)

// service implements the Service interface
type service struct {
	repo          Repository
	images        imagestore.Store
	accessSecret  string
	accessExpiry  time.Duration
	refreshSecret string
	refreshExpiry time.Duration
	logger        *logger.Logger
}

// NewService creates a user service with JWT validation and defaults
func NewService(cfg *config.JWTConfig, repo Repository, images imagestore.Store, log *logger.Logger) (*service, error) {
	// Set defaults for nil or empty config values
	accessSecret := "change-me-in-production"
	if cfg != nil && cfg.AccessSecret != "" {
		accessSecret = cfg.AccessSecret
	}

	refreshSecret := accessSecret + "-refresh"
	if cfg != nil && cfg.RefreshSecret != "" {
		refreshSecret = cfg.RefreshSecret
	}

	accessExpiry := 15 * time.Minute
	if cfg != nil && cfg.AccessExpiration != "" {
		duration, err := time.ParseDuration(cfg.AccessExpiration)
		if err != nil {
			return nil, fmt.Errorf("invalid access token expiration '%s': %v", cfg.AccessExpiration, err)
		}
		accessExpiry = duration
	}

	refreshExpiry := 240 * time.Hour
	if cfg != nil && cfg.RefreshExpiration != "" {
		duration, err := time.ParseDuration(cfg.RefreshExpiration)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh token expiration '%s': %v", cfg.RefreshExpiration, err)
		}
		refreshExpiry = duration
	}

	return &service{
		repo:          repo,
		images:        images,
		accessSecret:  accessSecret,
		accessExpiry:  accessExpiry,
		refreshSecret: refreshSecret,
		refreshExpiry: refreshExpiry,
		logger:        log.WithComponent("user-service"),
	}, nil
}

// AccessClaims represents the JWT claims of an access token
type AccessClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the JWT claims of a refresh token; Nonce identifies
// the single currently valid token for the user
type RefreshClaims struct {
	UserID string `json:"user_id"`
	Nonce  string `json:"nonce"`
	jwt.RegisteredClaims
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	// Report every missing field, not just the first
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"fullname", in.FullName},
		{"email", in.Email},
		{"username", in.Username},
		{"password", strings.TrimSpace(in.Password)},
		{"phoneNumber", in.PhoneNumber},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		s.logger.Info("Registration rejected, missing fields: " + strings.Join(missing, ", "))
		return nil, &ValidationError{Fields: missing}
	}

	s.logger.Info("User registration attempt for username: " + in.Username)

	existing, err := s.repo.FindByUniqueFields(in.Username, in.Email, in.PhoneNumber)
	if err == nil && existing != nil {
		field := "phone number"
		switch {
		case existing.Username == in.Username:
			field = "username"
		case existing.Email == in.Email:
			field = "email"
		}
		s.logger.Info("Registration failed - duplicate " + field + " for " + in.Username)
		return nil, &ConflictError{Field: field}
	}

	var uploaded imagestore.Image
	if in.Image != nil {
		uploaded, err = s.images.Upload(ctx, *in.Image)
		if err != nil {
			s.logger.Error("Profile image upload failed for " + in.Username + ": " + err.Error())
			return nil, ErrImageUpload
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash password for " + in.Username + ": " + err.Error())
		s.cleanupImage(ctx, uploaded)
		return nil, err
	}

	u := &User{
		ID:              uuid.New(),
		FullName:        in.FullName,
		Username:        in.Username,
		Email:           in.Email,
		PhoneNumber:     in.PhoneNumber,
		PasswordHash:    string(hashedPassword),
		ProfileImageURL: uploaded.URL,
		ProfileImageID:  uploaded.PublicID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.repo.Create(u); err != nil {
		s.logger.Error("Failed to create user " + in.Username + ": " + err.Error())
		s.cleanupImage(ctx, uploaded)
		return nil, err
	}

	// Read back the persisted record; if it cannot be found the uploaded
	// image would be orphaned, so it is removed as a compensating action
	created, err := s.repo.FindByID(u.ID)
	if err != nil {
		s.logger.Error("User " + in.Username + " missing after creation: " + err.Error())
		s.cleanupImage(ctx, uploaded)
		return nil, err
	}

	s.logger.Info("User created successfully: " + in.Username + " (ID: " + created.ID.String() + ")")

	return created, nil
}

// cleanupImage removes an uploaded asset best-effort; failures are logged,
// never returned, so they cannot mask the original error
func (s *service) cleanupImage(ctx context.Context, img imagestore.Image) {
	if img.PublicID == "" {
		return
	}
	if err := s.images.Delete(ctx, img.PublicID); err != nil {
		s.logger.Error("Failed to clean up uploaded image " + img.PublicID + ": " + err.Error())
	}
}

func (s *service) Login(identifier, password string) (*User, TokenPair, error) {
	s.logger.Info("User login attempt for: " + identifier)

	u, err := s.repo.FindByIdentifier(identifier)
	if err != nil {
		s.logger.Info("Login failed - user not found: " + identifier)
		return nil, TokenPair{}, ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Login failed - invalid password for " + identifier + " (ID: " + u.ID.String() + ")")
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(u)
	if err != nil {
		s.logger.Error("Failed to issue tokens for " + identifier + " (ID: " + u.ID.String() + "): " + err.Error())
		return nil, TokenPair{}, err
	}

	s.logger.Info("User logged in successfully: " + identifier + " (ID: " + u.ID.String() + ")")

	return u, pair, nil
}

func (s *service) Refresh(incomingToken string) (*User, TokenPair, error) {
	token, err := jwt.ParseWithClaims(incomingToken, &RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.refreshSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, TokenPair{}, ErrInvalidRefreshToken
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok {
		return nil, TokenPair{}, ErrInvalidRefreshToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, TokenPair{}, ErrInvalidRefreshToken
	}

	u, err := s.repo.FindByID(userID)
	if err != nil {
		s.logger.Info("Refresh failed - user no longer exists: " + claims.UserID)
		return nil, TokenPair{}, ErrInvalidRefreshToken
	}

	// Compare-and-swap on the stored nonce: a superseded token carries a
	// stale nonce even if its signature is still valid
	if u.RefreshTokenNonce == "" || u.RefreshTokenNonce != claims.Nonce || u.RefreshTokenHash != hashToken(incomingToken) {
		s.logger.Info("Refresh rejected - token superseded or reused for user " + u.ID.String())
		return nil, TokenPair{}, ErrRefreshTokenReused
	}

	pair, err := s.issueTokens(u)
	if err != nil {
		s.logger.Error("Failed to rotate tokens for user " + u.ID.String() + ": " + err.Error())
		return nil, TokenPair{}, err
	}

	s.logger.Info("Tokens rotated successfully for user: " + u.ID.String())

	return u, pair, nil
}

func (s *service) Logout(userID uuid.UUID) error {
	u, err := s.repo.FindByID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	u.RefreshTokenHash = ""
	u.RefreshTokenNonce = ""
	u.UpdatedAt = time.Now()

	if err := s.repo.Update(u); err != nil {
		s.logger.Error("Failed to clear refresh token for user " + userID.String() + ": " + err.Error())
		return err
	}

	s.logger.Info("User logged out: " + userID.String())

	return nil
}

func (s *service) ChangePassword(userID uuid.UUID, currentPassword, newPassword string) error {
	u, err := s.repo.FindByID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		s.logger.Info("Password change rejected - wrong current password for user " + userID.String())
		return ErrInvalidCredentials
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash new password for user " + userID.String() + ": " + err.Error())
		return err
	}

	// The stored refresh token stays valid across a password change
	u.PasswordHash = string(hashedPassword)
	u.UpdatedAt = time.Now()

	if err := s.repo.Update(u); err != nil {
		s.logger.Error("Failed to update password for user " + userID.String() + ": " + err.Error())
		return err
	}

	s.logger.Info("Password changed for user: " + userID.String())

	return nil
}

func (s *service) ChangeProfileImage(ctx context.Context, userID uuid.UUID, image imagestore.Upload) (*User, error) {
	u, err := s.repo.FindByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if u.ProfileImageID != "" {
		if err := s.images.Delete(ctx, u.ProfileImageID); err != nil {
			s.logger.Error("Failed to delete previous profile image " + u.ProfileImageID + ": " + err.Error())
		}
	}

	uploaded, err := s.images.Upload(ctx, image)
	if err != nil {
		s.logger.Error("Profile image upload failed for user " + userID.String() + ": " + err.Error())
		return nil, ErrImageUpload
	}

	u.ProfileImageURL = uploaded.URL
	u.ProfileImageID = uploaded.PublicID
	u.UpdatedAt = time.Now()

	if err := s.repo.Update(u); err != nil {
		s.logger.Error("Failed to update profile image for user " + userID.String() + ": " + err.Error())
		return nil, err
	}

	s.logger.Info("Profile image updated for user: " + userID.String())

	return u, nil
}

func (s *service) ValidateAccessToken(tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.accessSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, errors.New("invalid user ID in token")
	}

	u, err := s.repo.FindByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	return u, nil
}

func (s *service) TokenTTLs() (time.Duration, time.Duration) {
	return s.accessExpiry, s.refreshExpiry
}

// issueTokens creates a fresh access/refresh pair and persists the rotation
// state; any previously issued refresh token is invalidated by the new nonce
func (s *service) issueTokens(u *User) (TokenPair, error) {
	now := time.Now()

	accessClaims := AccessClaims{
		UserID:   u.ID.String(),
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "scripts-backend",
			Subject:   u.ID.String(),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.accessSecret))
	if err != nil {
		return TokenPair{}, err
	}

	nonce := uuid.New().String()
	refreshClaims := RefreshClaims{
		UserID: u.ID.String(),
		Nonce:  nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "scripts-backend",
			Subject:   u.ID.String(),
			ID:        nonce,
		},
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.refreshSecret))
	if err != nil {
		return TokenPair{}, err
	}

	u.RefreshTokenHash = hashToken(refreshToken)
	u.RefreshTokenNonce = nonce
	u.UpdatedAt = now

	if err := s.repo.Update(u); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// hashToken returns the hex SHA-256 digest of a refresh token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
