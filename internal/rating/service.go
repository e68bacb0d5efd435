package rating

import (
	"errors"
	"math"
	"time"

	"github.com/finsight/scripts-backend/internal/utils"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/google/uuid"
)

// Sentinel errors mapped onto HTTP codes by the handler
var (
	ErrInvalidRating  = errors.New("rating must be between 1 and 10")
	ErrScriptNotFound = errors.New("script not found")
	// Covers both a missing rating and someone else's rating
	ErrRatingNotFound = errors.New("rating not found or you don't have permission")
)

// service implements the Service interface
type service struct {
	repo    Repository
	scripts ScriptService
	logger  *logger.Logger
}

// NewService creates a new rating service
func NewService(repo Repository, scripts ScriptService, log *logger.Logger) Service {
	return &service{
		repo:    repo,
		scripts: scripts,
		logger:  log.WithComponent("rating-service"),
	}
}

// AddOrUpdate upserts a rating by (script, subject) and then recomputes the
// script's cached aggregate from the full rating set. The find-write-recompute
// sequence is deliberately not transactional: two concurrent submissions can
// interleave so the final cache reflects only one recomputation read
// (last-recompute-wins). The reconcile worker heals any such lost update.
func (s *service) AddOrUpdate(scriptID uuid.UUID, value int, subject Subject) (*Rating, Aggregate, error) {
	s.logger.Info("Rating script " + scriptID.String() + " by " + subject.Kind + " subject with value " + utils.IntToString(value))

	if value < 1 || value > 10 {
		s.logger.Info("Rejected out-of-range rating " + utils.IntToString(value) + " for script " + scriptID.String())
		return nil, Aggregate{}, ErrInvalidRating
	}

	if _, err := s.scripts.GetScript(scriptID); err != nil {
		s.logger.Info("Rating rejected - script not found: " + scriptID.String())
		return nil, Aggregate{}, ErrScriptNotFound
	}

	existing, err := s.repo.FindBySubject(scriptID, subject)
	if err != nil && !errors.Is(err, ErrNoRating) {
		s.logger.Error("Failed to look up rating for script " + scriptID.String() + ": " + err.Error())
		return nil, Aggregate{}, err
	}

	if existing != nil {
		// Update in place, preserving the one-rating-per-subject invariant
		existing.Rating = value
		if subject.IPAddress != "" {
			existing.IPAddress = subject.IPAddress
		}
		existing.UpdatedAt = time.Now()

		if updateErr := s.repo.Update(existing); updateErr != nil {
			s.logger.Error("Failed to update rating for script " + scriptID.String() + ": " + updateErr.Error())
			return nil, Aggregate{}, updateErr
		}
	} else {
		existing = &Rating{
			ID:          uuid.New(),
			ScriptID:    scriptID,
			SubjectKind: subject.Kind,
			SubjectKey:  subject.Key,
			IPAddress:   subject.IPAddress,
			Rating:      value,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if subject.Kind == SubjectUser {
			if userID, parseErr := uuid.Parse(subject.Key); parseErr == nil {
				existing.UserID = &userID
			}
		}

		if createErr := s.repo.Create(existing); createErr != nil {
			s.logger.Error("Failed to create rating for script " + scriptID.String() + ": " + createErr.Error())
			return nil, Aggregate{}, createErr
		}
	}

	agg, err := s.recompute(scriptID)
	if err != nil {
		return nil, Aggregate{}, err
	}

	s.logger.Info("Rating upserted for script " + scriptID.String() + ", aggregate now " +
		utils.FloatToString(agg.AverageRating) + " over " + utils.IntToString(agg.RatingCount))

	return existing, agg, nil
}

// GetUserRating returns the caller's rating for a script, or nil when the
// caller has not rated it yet; absence is not an error
func (s *service) GetUserRating(scriptID, userID uuid.UUID) (*Rating, error) {
	r, err := s.repo.FindBySubject(scriptID, UserSubject(userID))
	if errors.Is(err, ErrNoRating) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to look up rating for script " + scriptID.String() + ": " + err.Error())
		return nil, err
	}
	return r, nil
}

func (s *service) GetScriptRatings(scriptID uuid.UUID) ([]*ScriptRating, error) {
	return s.repo.ListByScript(scriptID)
}

func (s *service) DeleteRating(id, callerID uuid.UUID) (Aggregate, error) {
	s.logger.Info("Deleting rating " + id.String() + " by user " + callerID.String())

	r, err := s.repo.FindByIDAndUser(id, callerID)
	if errors.Is(err, ErrNoRating) {
		return Aggregate{}, ErrRatingNotFound
	}
	if err != nil {
		s.logger.Error("Failed to look up rating " + id.String() + ": " + err.Error())
		return Aggregate{}, err
	}

	if err := s.repo.Delete(r.ID); err != nil {
		s.logger.Error("Failed to delete rating " + id.String() + ": " + err.Error())
		return Aggregate{}, err
	}

	agg, err := s.recompute(r.ScriptID)
	if err != nil {
		return Aggregate{}, err
	}

	s.logger.Info("Rating deleted, script " + r.ScriptID.String() + " aggregate now " +
		utils.FloatToString(agg.AverageRating) + " over " + utils.IntToString(agg.RatingCount))

	return agg, nil
}

// ReconcileAggregates recomputes every script's cached aggregate in one
// statement; run periodically by the background worker
func (s *service) ReconcileAggregates() error {
	updated, err := s.repo.ReconcileAggregates()
	if err != nil {
		s.logger.Error("Aggregate reconciliation failed: " + err.Error())
		return err
	}

	s.logger.Info("Aggregate reconciliation touched " + utils.IntToString(int(updated)) + " scripts")

	return nil
}

// recompute reads the full rating set of a script and writes the mean and
// count back onto the script row; an empty set resets the pair to (0, 0)
func (s *service) recompute(scriptID uuid.UUID) (Aggregate, error) {
	average, count, err := s.repo.AggregateForScript(scriptID)
	if err != nil {
		s.logger.Error("Failed to aggregate ratings for script " + scriptID.String() + ": " + err.Error())
		return Aggregate{}, err
	}

	if count == 0 {
		average = 0
	} else {
		average = math.Round(average*100) / 100
	}

	if err := s.scripts.UpdateAggregate(scriptID, average, count); err != nil {
		s.logger.Error("Failed to persist aggregate for script " + scriptID.String() + ": " + err.Error())
		return Aggregate{}, err
	}

	return Aggregate{AverageRating: average, RatingCount: count}, nil
}
