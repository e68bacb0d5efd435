package rating

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoRating reports an absent rating. Repository implementations return it
// (possibly wrapped) so callers can tell absence apart from a database failure
var ErrNoRating = errors.New("rating not found")

// Subject kinds; one rating per (script, subject) pair
const (
	SubjectUser      = "user"
	SubjectGuest     = "guest"
	SubjectAnonymous = "anon"
)

// Subject is the tagged identity a rating is attributed to: an authenticated
// user, a guest id supplied by the client, or the caller's IP address
type Subject struct {
	Kind      string
	Key       string
	IPAddress string
}

// UserSubject attributes a rating to an authenticated user
func UserSubject(userID uuid.UUID) Subject {
	return Subject{Kind: SubjectUser, Key: userID.String()}
}

// GuestSubject attributes a rating to a client-supplied guest id
func GuestSubject(guestID, ip string) Subject {
	return Subject{Kind: SubjectGuest, Key: guestID, IPAddress: ip}
}

// AnonymousSubject attributes a rating to the caller's IP address. This is an
// anti-abuse heuristic, not a security control: addresses are shared and spoofable
func AnonymousSubject(ip string) Subject {
	return Subject{Kind: SubjectAnonymous, Key: ip, IPAddress: ip}
}

// Rating represents a 1-10 score attached to a script by one subject
type Rating struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ScriptID uuid.UUID `json:"script_id" gorm:"type:uuid;not null;index:idx_script_ratings;uniqueIndex:idx_script_subject"`

	// Tagged subject; the composite unique index enforces at most one
	// rating per (script, subject) across all three variants
	SubjectKind string `json:"subject_kind" gorm:"not null;size:16;uniqueIndex:idx_script_subject"`
	SubjectKey  string `json:"-" gorm:"not null;size:128;uniqueIndex:idx_script_subject"`

	// Set only for the user variant, kept for rater-identity joins
	UserID    *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	IPAddress string     `json:"-" gorm:"size:64"`

	Rating int `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 10"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Script represents the rated script for service dependencies (forward declaration)
type Script struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"type:uuid;not null"`
	Title         string
	AverageRating float64
	RatingCount   int
}

// Aggregate is the denormalized pair cached on a script
type Aggregate struct {
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"ratingCount"`
}

// RaterInfo is the public identity of a rating's author in joined reads;
// zero-valued for guest and anonymous ratings
type RaterInfo struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	Username        string     `json:"username,omitempty"`
	ProfileImageURL string     `json:"profile_image_url,omitempty"`
}

// ScriptRating is a rating joined with its rater's public identity
type ScriptRating struct {
	ID        uuid.UUID `json:"id"`
	Rating    int       `json:"rating"`
	Rater     RaterInfo `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for rating data access
type Repository interface {
	Create(rating *Rating) error
	FindBySubject(scriptID uuid.UUID, subject Subject) (*Rating, error)
	FindByIDAndUser(id, userID uuid.UUID) (*Rating, error)
	Update(rating *Rating) error
	Delete(id uuid.UUID) error
	DeleteByScript(scriptID uuid.UUID) error

	// Joined read, newest first
	ListByScript(scriptID uuid.UUID) ([]*ScriptRating, error)

	// Full aggregation over all ratings of one script
	AggregateForScript(scriptID uuid.UUID) (float64, int, error)

	// Single-statement recompute of every script's cached aggregate
	ReconcileAggregates() (int64, error)
}

// Service defines the interface for rating business logic
type Service interface {
	AddOrUpdate(scriptID uuid.UUID, value int, subject Subject) (*Rating, Aggregate, error)
	GetUserRating(scriptID, userID uuid.UUID) (*Rating, error)
	GetScriptRatings(scriptID uuid.UUID) ([]*ScriptRating, error)
	DeleteRating(id, callerID uuid.UUID) (Aggregate, error)
	ReconcileAggregates() error
}

// ScriptService is the narrow view of script business logic the rating
// engine depends on
type ScriptService interface {
	GetScript(id uuid.UUID) (*Script, error)
	UpdateAggregate(id uuid.UUID, average float64, count int) error
}

// AddRatingRequest represents a rating submission
type AddRatingRequest struct {
	ScriptID string `json:"scriptId" binding:"required"`
	Rating   int    `json:"rating" binding:"required"`
	GuestID  string `json:"guestId"`
}

// RatingResponse represents a rating in API responses
type RatingResponse struct {
	ID        uuid.UUID  `json:"id"`
	ScriptID  uuid.UUID  `json:"script_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Rating    int        `json:"rating"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ToResponse converts Rating to RatingResponse
func (r *Rating) ToResponse() *RatingResponse {
	return &RatingResponse{
		ID:        r.ID,
		ScriptID:  r.ScriptID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// IsValidValue checks if the score is within the 1-10 range
func (r *Rating) IsValidValue() bool {
	return r.Rating >= 1 && r.Rating <= 10
}

// TableName returns the table name for GORM
func (Rating) TableName() string {
	return "ratings"
}
