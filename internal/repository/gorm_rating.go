package repository

import (
	"fmt"
	"time"

	ratingPkg "github.com/finsight/scripts-backend/internal/rating"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormRatingRepository implements the rating.Repository interface with GORM optimizations
type gormRatingRepository struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewGORMRatingRepository creates a new GORM-based rating repository
func NewGORMRatingRepository(db *gorm.DB, log *logger.Logger) ratingPkg.Repository {
	return &gormRatingRepository{
		db:     db,
		logger: log.WithComponent("gorm-rating-repository"),
	}
}

func (r *gormRatingRepository) Create(rating *ratingPkg.Rating) error {
	if err := r.db.Create(rating).Error; err != nil {
		r.logger.Error("Failed to create rating for script " + rating.ScriptID.String() + ": " + err.Error())
		return fmt.Errorf("failed to create rating: %w", err)
	}

	return nil
}

func (r *gormRatingRepository) FindBySubject(scriptID uuid.UUID, subject ratingPkg.Subject) (*ratingPkg.Rating, error) {
	var rating ratingPkg.Rating

	// The composite unique index backs this lookup
	err := r.db.Where("script_id = ? AND subject_kind = ? AND subject_key = ?",
		scriptID, subject.Kind, subject.Key).First(&rating).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ratingPkg.ErrNoRating
		}

		r.logger.Error("Database error finding rating for script " + scriptID.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &rating, nil
}

func (r *gormRatingRepository) FindByIDAndUser(id, userID uuid.UUID) (*ratingPkg.Rating, error) {
	var rating ratingPkg.Rating

	// Id and author matched together so missing and foreign ratings are
	// indistinguishable to the caller
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&rating).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ratingPkg.ErrNoRating
		}

		r.logger.Error("Database error finding rating " + id.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &rating, nil
}

func (r *gormRatingRepository) Update(rating *ratingPkg.Rating) error {
	// Use Save() for updates with GORM optimizations
	if err := r.db.Save(rating).Error; err != nil {
		r.logger.Error("Failed to update rating " + rating.ID.String() + ": " + err.Error())
		return fmt.Errorf("failed to update rating: %w", err)
	}

	return nil
}

func (r *gormRatingRepository) Delete(id uuid.UUID) error {
	result := r.db.Delete(&ratingPkg.Rating{}, id)
	if err := result.Error; err != nil {
		r.logger.Error("Failed to delete rating " + id.String() + ": " + err.Error())
		return fmt.Errorf("failed to delete rating: %w", err)
	}

	if result.RowsAffected == 0 {
		return ratingPkg.ErrNoRating
	}

	return nil
}

func (r *gormRatingRepository) DeleteByScript(scriptID uuid.UUID) error {
	// No-op when the script has no ratings, for cascade idempotency
	if err := r.db.Delete(&ratingPkg.Rating{}, "script_id = ?", scriptID).Error; err != nil {
		r.logger.Error("Failed to delete ratings for script " + scriptID.String() + ": " + err.Error())
		return fmt.Errorf("failed to delete ratings: %w", err)
	}

	return nil
}

func (r *gormRatingRepository) ListByScript(scriptID uuid.UUID) ([]*ratingPkg.ScriptRating, error) {
	type row struct {
		ID                   uuid.UUID
		Rating               int
		CreatedAt            time.Time
		RaterID              *uuid.UUID
		RaterUsername        string
		RaterProfileImageURL string
	}

	var rows []row
	err := r.db.Table("ratings").
		Select(`ratings.id, ratings.rating, ratings.created_at,
			users.id AS rater_id, users.username AS rater_username,
			users.profile_image_url AS rater_profile_image_url`).
		Joins("LEFT JOIN users ON users.id = ratings.user_id").
		Where("ratings.script_id = ?", scriptID).
		Order("ratings.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error("Database error listing ratings for script " + scriptID.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	out := make([]*ratingPkg.ScriptRating, 0, len(rows))
	for _, rw := range rows {
		out = append(out, &ratingPkg.ScriptRating{
			ID:     rw.ID,
			Rating: rw.Rating,
			Rater: ratingPkg.RaterInfo{
				ID:              rw.RaterID,
				Username:        rw.RaterUsername,
				ProfileImageURL: rw.RaterProfileImageURL,
			},
			CreatedAt: rw.CreatedAt,
		})
	}

	return out, nil
}

func (r *gormRatingRepository) AggregateForScript(scriptID uuid.UUID) (float64, int, error) {
	type result struct {
		Average float64
		Count   int
	}

	var res result

	// Use efficient aggregation query
	err := r.db.Model(&ratingPkg.Rating{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("script_id = ?", scriptID).
		Scan(&res).Error
	if err != nil {
		r.logger.Error("Database error aggregating ratings for script " + scriptID.String() + ": " + err.Error())
		return 0, 0, fmt.Errorf("database error: %w", err)
	}

	return res.Average, res.Count, nil
}

func (r *gormRatingRepository) ReconcileAggregates() (int64, error) {
	// One statement recomputes every script's cached pair, resetting
	// scripts whose ratings are all gone back to (0, 0)
	result := r.db.Exec(`
		UPDATE scripts SET
			average_rating = COALESCE(agg.avg_rating, 0),
			rating_count   = COALESCE(agg.cnt, 0)
		FROM (
			SELECT s.id AS script_id,
			       ROUND(AVG(r.rating)::numeric, 2) AS avg_rating,
			       COUNT(r.id) AS cnt
			FROM scripts s
			LEFT JOIN ratings r ON r.script_id = s.id
			GROUP BY s.id
		) AS agg
		WHERE scripts.id = agg.script_id
		  AND (scripts.average_rating IS DISTINCT FROM COALESCE(agg.avg_rating, 0)
		       OR scripts.rating_count IS DISTINCT FROM COALESCE(agg.cnt, 0))`)
	if err := result.Error; err != nil {
		r.logger.Error("Failed to reconcile script aggregates: " + err.Error())
		return 0, fmt.Errorf("failed to reconcile aggregates: %w", err)
	}

	return result.RowsAffected, nil
}
