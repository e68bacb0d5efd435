package repository

import (
	"fmt"
	"time"

	scriptPkg "github.com/finsight/scripts-backend/internal/script"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormScriptRepository implements the script.Repository interface with GORM optimizations
type gormScriptRepository struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewGORMScriptRepository creates a new GORM-based script repository
func NewGORMScriptRepository(db *gorm.DB, log *logger.Logger) scriptPkg.Repository {
	return &gormScriptRepository{
		db:     db,
		logger: log.WithComponent("gorm-script-repository"),
	}
}

func (r *gormScriptRepository) Create(script *scriptPkg.Script) error {
	r.logger.Info("Creating script " + script.ID.String() + " for user " + script.UserID.String())

	if err := r.db.Create(script).Error; err != nil {
		r.logger.Error("Failed to create script " + script.ID.String() + ": " + err.Error())
		return fmt.Errorf("failed to create script: %w", err)
	}

	return nil
}

func (r *gormScriptRepository) FindByID(id uuid.UUID) (*scriptPkg.Script, error) {
	var script scriptPkg.Script

	// Use primary key lookup for optimal performance
	err := r.db.First(&script, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			r.logger.Info("Script not found: " + id.String())
			return nil, fmt.Errorf("script not found")
		}

		r.logger.Error("Database error finding script " + id.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &script, nil
}

func (r *gormScriptRepository) FindByIDAndOwner(id, ownerID uuid.UUID) (*scriptPkg.Script, error) {
	var script scriptPkg.Script

	// Existence and ownership checked together so the caller cannot tell
	// them apart
	err := r.db.Where("id = ? AND user_id = ?", id, ownerID).First(&script).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("script not found")
		}

		r.logger.Error("Database error finding script " + id.String() + " for owner " + ownerID.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &script, nil
}

func (r *gormScriptRepository) FindByOwner(ownerID uuid.UUID) ([]*scriptPkg.Script, error) {
	var scripts []*scriptPkg.Script

	err := r.db.Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&scripts).Error
	if err != nil {
		r.logger.Error("Database error finding scripts by owner " + ownerID.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return scripts, nil
}

func (r *gormScriptRepository) Update(script *scriptPkg.Script) error {
	// Use Save() for updates with GORM optimizations
	if err := r.db.Save(script).Error; err != nil {
		r.logger.Error("Failed to update script " + script.ID.String() + ": " + err.Error())
		return fmt.Errorf("failed to update script: %w", err)
	}

	return nil
}

func (r *gormScriptRepository) UpdateAggregate(id uuid.UUID, average float64, count int) error {
	// Only the cached pair is written so concurrent title/description edits
	// are not clobbered
	err := r.db.Model(&scriptPkg.Script{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"average_rating": average,
			"rating_count":   count,
			"updated_at":     time.Now(),
		}).Error
	if err != nil {
		r.logger.Error("Failed to update aggregate for script " + id.String() + ": " + err.Error())
		return fmt.Errorf("failed to update aggregate: %w", err)
	}

	return nil
}

func (r *gormScriptRepository) Delete(id uuid.UUID) error {
	result := r.db.Delete(&scriptPkg.Script{}, id)
	if err := result.Error; err != nil {
		r.logger.Error("Failed to delete script " + id.String() + ": " + err.Error())
		return fmt.Errorf("failed to delete script: %w", err)
	}

	// Already-gone target is a no-op for cascade idempotency
	return nil
}

// listingRow is the flat scan target of the joined listing query
type listingRow struct {
	ID                   uuid.UUID
	Title                string
	Description          string
	ImageURL             string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	OwnerID              uuid.UUID
	OwnerUsername        string
	OwnerFullName        string
	OwnerProfileImageURL string
	AverageRating        float64
	RatingCount          int
}

func (row *listingRow) toListing() *scriptPkg.Listing {
	return &scriptPkg.Listing{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		Owner: scriptPkg.OwnerInfo{
			ID:              row.OwnerID,
			Username:        row.OwnerUsername,
			FullName:        row.OwnerFullName,
			ProfileImageURL: row.OwnerProfileImageURL,
		},
		AverageRating: row.AverageRating,
		RatingCount:   row.RatingCount,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

const listingSelect = `scripts.id, scripts.title, scripts.description, scripts.image_url,
	scripts.created_at, scripts.updated_at,
	users.id AS owner_id, users.username AS owner_username,
	users.full_name AS owner_full_name, users.profile_image_url AS owner_profile_image_url,
	COALESCE(AVG(ratings.rating), 0) AS average_rating,
	COUNT(ratings.id) AS rating_count`

func (r *gormScriptRepository) ListWithAggregates() ([]*scriptPkg.Listing, error) {
	var rows []listingRow

	// Aggregate computed live from the ratings table; the cached columns on
	// scripts are never read here
	err := r.db.Table("scripts").
		Select(listingSelect).
		Joins("JOIN users ON users.id = scripts.user_id").
		Joins("LEFT JOIN ratings ON ratings.script_id = scripts.id").
		Group("scripts.id, users.id").
		Order("scripts.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error("Database error listing scripts with aggregates: " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	listings := make([]*scriptPkg.Listing, 0, len(rows))
	for i := range rows {
		listings = append(listings, rows[i].toListing())
	}

	return listings, nil
}

func (r *gormScriptRepository) FindDetailByID(id uuid.UUID) (*scriptPkg.Detail, error) {
	var rows []listingRow

	err := r.db.Table("scripts").
		Select(listingSelect).
		Joins("JOIN users ON users.id = scripts.user_id").
		Joins("LEFT JOIN ratings ON ratings.script_id = scripts.id").
		Where("scripts.id = ?", id).
		Group("scripts.id, users.id").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error("Database error loading script detail " + id.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}
	if len(rows) == 0 {
		r.logger.Info("Script detail not found: " + id.String())
		return nil, fmt.Errorf("script not found")
	}

	detail := &scriptPkg.Detail{Listing: *rows[0].toListing()}

	// Nested ratings in submission order, each joined to its rater; guest
	// and anonymous ratings join to no user row
	type ratingRow struct {
		ID                   uuid.UUID
		Rating               int
		CreatedAt            time.Time
		RaterID              *uuid.UUID
		RaterUsername        string
		RaterProfileImageURL string
	}

	var ratingRows []ratingRow
	err = r.db.Table("ratings").
		Select(`ratings.id, ratings.rating, ratings.created_at,
			users.id AS rater_id, users.username AS rater_username,
			users.profile_image_url AS rater_profile_image_url`).
		Joins("LEFT JOIN users ON users.id = ratings.user_id").
		Where("ratings.script_id = ?", id).
		Order("ratings.created_at ASC").
		Scan(&ratingRows).Error
	if err != nil {
		r.logger.Error("Database error loading ratings for script " + id.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	detail.Ratings = make([]scriptPkg.RatingEntry, 0, len(ratingRows))
	for _, row := range ratingRows {
		entry := scriptPkg.RatingEntry{
			ID:        row.ID,
			Rating:    row.Rating,
			CreatedAt: row.CreatedAt,
		}
		if row.RaterID != nil {
			entry.Rater = scriptPkg.RaterInfo{
				ID:              *row.RaterID,
				Username:        row.RaterUsername,
				ProfileImageURL: row.RaterProfileImageURL,
			}
		}
		detail.Ratings = append(detail.Ratings, entry)
	}

	return detail, nil
}
