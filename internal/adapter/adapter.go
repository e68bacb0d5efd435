package adapter

import (
	"github.com/finsight/scripts-backend/internal/rating"
	"github.com/finsight/scripts-backend/internal/script"
	"github.com/google/uuid"
)

// ScriptServiceToRatingScriptService adapts script.Service to rating.ScriptService
type ScriptServiceToRatingScriptService struct {
	service script.Service
}

// NewScriptServiceToRatingScriptService creates a new adapter
func NewScriptServiceToRatingScriptService(s script.Service) rating.ScriptService {
	return &ScriptServiceToRatingScriptService{
		service: s,
	}
}

func (a *ScriptServiceToRatingScriptService) GetScript(id uuid.UUID) (*rating.Script, error) {
	scriptEntity, err := a.service.GetScript(id)
	if err != nil {
		return nil, err
	}

	// Convert script.Script to rating.Script
	return &rating.Script{
		ID:            scriptEntity.ID,
		UserID:        scriptEntity.UserID,
		Title:         scriptEntity.Title,
		AverageRating: scriptEntity.AverageRating,
		RatingCount:   scriptEntity.RatingCount,
	}, nil
}

func (a *ScriptServiceToRatingScriptService) UpdateAggregate(id uuid.UUID, average float64, count int) error {
	return a.service.UpdateAggregate(id, average, count)
}
