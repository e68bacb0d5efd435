package script

import (
	"context"
	"time"

	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/google/uuid"
)

// Script represents a user-authored content post with optimized GORM relationships
type Script struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_user_scripts"`
	Title       string    `json:"title" gorm:"not null;size:500"`
	Description string    `json:"description" gorm:"type:text"`
	ImageURL    string    `json:"image_url" gorm:"size:2048"`
	ImageID     string    `json:"-" gorm:"size:512"`

	// Cached aggregate, recomputed from the ratings table by the rating
	// engine; never written from a client request
	AverageRating float64 `json:"average_rating" gorm:"default:0"`
	RatingCount   int     `json:"rating_count" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Associations
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Ratings []Rating `json:"ratings,omitempty" gorm:"foreignKey:ScriptID;constraint:OnDelete:CASCADE"`
}

// User represents the owner for foreign key relationships (forward declaration)
type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username        string
	FullName        string
	ProfileImageURL string
}

// Rating represents a rating for foreign key relationships (forward declaration)
type Rating struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScriptID uuid.UUID `gorm:"type:uuid;not null"`
	Rating   int
}

// OwnerInfo is the public identity of a script's owner in joined reads
type OwnerInfo struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	FullName        string    `json:"fullname"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
}

// Listing is a script joined with its owner and the live rating aggregate
// computed from the ratings table, not the cached columns
type Listing struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ImageURL      string    `json:"image_url,omitempty"`
	Owner         OwnerInfo `json:"user"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RaterInfo is the public identity of a rating's author in joined reads
type RaterInfo struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
}

// RatingEntry is a single rating nested under a script detail view
type RatingEntry struct {
	ID        uuid.UUID `json:"id"`
	Rating    int       `json:"rating"`
	Rater     RaterInfo `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is a Listing extended with the full list of individual ratings
type Detail struct {
	Listing
	Ratings []RatingEntry `json:"ratings"`
}

// Repository defines the interface for script data access
type Repository interface {
	Create(script *Script) error
	FindByID(id uuid.UUID) (*Script, error)
	FindByIDAndOwner(id, ownerID uuid.UUID) (*Script, error)
	FindByOwner(ownerID uuid.UUID) ([]*Script, error)
	Update(script *Script) error
	UpdateAggregate(id uuid.UUID, average float64, count int) error
	Delete(id uuid.UUID) error

	// Joined reads with live aggregation over the ratings table
	ListWithAggregates() ([]*Listing, error)
	FindDetailByID(id uuid.UUID) (*Detail, error)
}

// Service defines the interface for script business logic
type Service interface {
	CreateScript(ctx context.Context, ownerID uuid.UUID, title, description string, image *imagestore.Upload) (*Script, error)
	ListScripts() ([]*Listing, error)
	GetScriptByID(id uuid.UUID) (*Detail, error)
	GetMyScripts(ownerID uuid.UUID) ([]*Script, error)
	UpdateScript(ctx context.Context, id, ownerID uuid.UUID, title, description string, image *imagestore.Upload) (*Script, error)
	DeleteScript(ctx context.Context, id, ownerID uuid.UUID) error

	// Used by the rating engine through an adapter
	GetScript(id uuid.UUID) (*Script, error)
	UpdateAggregate(id uuid.UUID, average float64, count int) error
}

// RatingCleaner removes all ratings of a script during cascade deletion
type RatingCleaner interface {
	DeleteByScript(scriptID uuid.UUID) error
}

// CreateScriptRequest documents the multipart form fields of script creation
type CreateScriptRequest struct {
	Title       string `form:"title" binding:"required"`
	Description string `form:"description"`
}

// ScriptResponse represents a script in API responses
type ScriptResponse struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ImageURL      string    `json:"image_url,omitempty"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToResponse converts Script to ScriptResponse
func (s *Script) ToResponse() *ScriptResponse {
	return &ScriptResponse{
		ID:            s.ID,
		UserID:        s.UserID,
		Title:         s.Title,
		Description:   s.Description,
		ImageURL:      s.ImageURL,
		AverageRating: s.AverageRating,
		RatingCount:   s.RatingCount,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// IsOwnedBy checks if the script belongs to the specified user
func (s *Script) IsOwnedBy(userID uuid.UUID) bool {
	return s.UserID == userID
}

// TableName returns the table name for GORM
func (Script) TableName() string {
	return "scripts"
}
