package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/google/uuid"
)

// User represents a registered account with optimized GORM tags
type User struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FullName        string    `json:"fullname" gorm:"not null;size:255"`
	Username        string    `json:"username" gorm:"uniqueIndex;not null;size:100"`
	Email           string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	PhoneNumber     string    `json:"phone_number" gorm:"uniqueIndex;not null;size:32"`
	PasswordHash    string    `json:"-" gorm:"not null;size:255"`
	ProfileImageURL string    `json:"profile_image_url" gorm:"size:2048"`
	ProfileImageID  string    `json:"-" gorm:"size:512"`

	// Rotation state for the single active refresh token. Only the SHA-256
	// digest of the token is persisted, never the token itself.
	RefreshTokenHash  string `json:"-" gorm:"size:128"`
	RefreshTokenNonce string `json:"-" gorm:"size:64"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Repository defines the interface for user data access
type Repository interface {
	Create(user *User) error
	FindByID(id uuid.UUID) (*User, error)
	FindByIdentifier(identifier string) (*User, error)
	FindByUniqueFields(username, email, phoneNumber string) (*User, error)
	Update(user *User) error
}

// Service defines the interface for user business logic
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*User, error)
	Login(identifier, password string) (*User, TokenPair, error)
	Refresh(incomingToken string) (*User, TokenPair, error)
	Logout(userID uuid.UUID) error
	ChangePassword(userID uuid.UUID, currentPassword, newPassword string) error
	ChangeProfileImage(ctx context.Context, userID uuid.UUID, image imagestore.Upload) (*User, error)
	ValidateAccessToken(tokenString string) (*User, error)
	TokenTTLs() (access, refresh time.Duration)
}

// RegisterInput carries registration fields plus an optional profile image
type RegisterInput struct {
	FullName    string
	Email       string
	Username    string
	Password    string
	PhoneNumber string
	Image       *imagestore.Upload
}

// TokenPair bundles the access and refresh tokens issued together
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ValidationError reports every missing registration field at once
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// ConflictError identifies which unique identity field is already taken
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user with this %s already exists", e.Field)
}

// LoginRequest represents a login request; username or email identifies the user
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries a refresh token when it is not sent as a cookie
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest represents a password rotation request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

// UserResponse represents user in API responses (without credential material)
type UserResponse struct {
	ID              uuid.UUID `json:"id"`
	FullName        string    `json:"fullname"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	PhoneNumber     string    `json:"phone_number"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:              u.ID,
		FullName:        u.FullName,
		Username:        u.Username,
		Email:           u.Email,
		PhoneNumber:     u.PhoneNumber,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// TableName returns the table name for GORM
func (User) TableName() string {
	return "users"
}
