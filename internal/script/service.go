package script

import (
	"context"
	"errors"
	"time"

	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/google/uuid"
)

// Sentinel errors mapped onto HTTP codes by the handler
var (
	// Covers both a missing script and someone else's script, so the
	// response never reveals which one it was
	ErrScriptNotFound = errors.New("script not found or you don't have permission")
	ErrTitleRequired  = errors.New("title is required")
	ErrImageUpload    = errors.New("error uploading image")
)

// service implements the Service interface
type service struct {
	repo    Repository
	ratings RatingCleaner
	images  imagestore.Store
	logger  *logger.Logger
}

// NewService creates a new script service
func NewService(repo Repository, ratings RatingCleaner, images imagestore.Store, log *logger.Logger) Service {
	return &service{
		repo:    repo,
		ratings: ratings,
		images:  images,
		logger:  log.WithComponent("script-service"),
	}
}

func (s *service) CreateScript(ctx context.Context, ownerID uuid.UUID, title, description string, image *imagestore.Upload) (*Script, error) {
	if title == "" {
		return nil, ErrTitleRequired
	}

	s.logger.Info("Creating script for user " + ownerID.String() + ": " + title)

	var uploaded imagestore.Image
	if image != nil {
		var err error
		uploaded, err = s.images.Upload(ctx, *image)
		if err != nil {
			s.logger.Error("Failed to upload script image for user " + ownerID.String() + ": " + err.Error())
			return nil, ErrImageUpload
		}
	}

	sc := &Script{
		ID:          uuid.New(),
		UserID:      ownerID,
		Title:       title,
		Description: description,
		ImageURL:    uploaded.URL,
		ImageID:     uploaded.PublicID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.repo.Create(sc); err != nil {
		s.logger.Error("Failed to create script for user " + ownerID.String() + ": " + err.Error())
		return nil, err
	}

	s.logger.Info("Script created successfully: " + sc.ID.String() + " for user " + ownerID.String())

	return sc, nil
}

func (s *service) ListScripts() ([]*Listing, error) {
	return s.repo.ListWithAggregates()
}

func (s *service) GetScriptByID(id uuid.UUID) (*Detail, error) {
	detail, err := s.repo.FindDetailByID(id)
	if err != nil {
		return nil, ErrScriptNotFound
	}
	return detail, nil
}

func (s *service) GetMyScripts(ownerID uuid.UUID) ([]*Script, error) {
	return s.repo.FindByOwner(ownerID)
}

func (s *service) UpdateScript(ctx context.Context, id, ownerID uuid.UUID, title, description string, image *imagestore.Upload) (*Script, error) {
	sc, err := s.repo.FindByIDAndOwner(id, ownerID)
	if err != nil {
		return nil, ErrScriptNotFound
	}

	if image != nil {
		uploaded, err := s.images.Upload(ctx, *image)
		if err != nil {
			s.logger.Error("Failed to upload replacement image for script " + id.String() + ": " + err.Error())
			return nil, ErrImageUpload
		}

		// Old asset removed only after the new upload succeeded
		if sc.ImageID != "" {
			if err := s.images.Delete(ctx, sc.ImageID); err != nil {
				s.logger.Error("Failed to delete previous script image " + sc.ImageID + ": " + err.Error())
			}
		}

		sc.ImageURL = uploaded.URL
		sc.ImageID = uploaded.PublicID
	}

	// Omitted fields retain their previous values
	if title != "" {
		sc.Title = title
	}
	if description != "" {
		sc.Description = description
	}
	sc.UpdatedAt = time.Now()

	if err := s.repo.Update(sc); err != nil {
		s.logger.Error("Failed to update script " + id.String() + ": " + err.Error())
		return nil, err
	}

	s.logger.Info("Script updated successfully: " + id.String())

	return sc, nil
}

func (s *service) DeleteScript(ctx context.Context, id, ownerID uuid.UUID) error {
	sc, err := s.repo.FindByIDAndOwner(id, ownerID)
	if err != nil {
		return ErrScriptNotFound
	}

	s.logger.Info("Deleting script " + id.String() + " with cascade")

	// Each step is an idempotent no-op when its target is already gone
	if err := s.ratings.DeleteByScript(id); err != nil {
		s.logger.Error("Failed to delete ratings for script " + id.String() + ": " + err.Error())
		return err
	}

	if sc.ImageID != "" {
		if err := s.images.Delete(ctx, sc.ImageID); err != nil {
			s.logger.Error("Failed to delete image for script " + id.String() + ": " + err.Error())
		}
	}

	if err := s.repo.Delete(id); err != nil {
		s.logger.Error("Failed to delete script " + id.String() + ": " + err.Error())
		return err
	}

	s.logger.Info("Script deleted successfully: " + id.String())

	return nil
}

func (s *service) GetScript(id uuid.UUID) (*Script, error) {
	return s.repo.FindByID(id)
}

func (s *service) UpdateAggregate(id uuid.UUID, average float64, count int) error {
	return s.repo.UpdateAggregate(id, average, count)
}
