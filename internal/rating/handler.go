package rating

import (
	"errors"
	"net/http"

	"github.com/finsight/scripts-backend/internal/utils"
	"github.com/finsight/scripts-backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for rating operations
type Handler struct {
	service Service
}

// NewHandler creates a new rating handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// AddRating handles rating creation/update; works for authenticated users,
// guests with a guestId, and anonymous callers keyed by IP
func (h *Handler) AddRating(c *gin.Context) {
	var req AddRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "script ID and rating are required")
		return
	}

	scriptID, err := uuid.Parse(req.ScriptID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid script ID")
		return
	}

	var subject Subject
	if userID, err := utils.CurrentUserID(c); err == nil {
		subject = UserSubject(userID)
	} else if req.GuestID != "" {
		subject = GuestSubject(req.GuestID, c.ClientIP())
	} else {
		subject = AnonymousSubject(c.ClientIP())
	}

	r, agg, err := h.service.AddOrUpdate(scriptID, req.Rating, subject)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRating):
			response.Error(c, http.StatusBadRequest, ErrInvalidRating.Error())
		case errors.Is(err, ErrScriptNotFound):
			response.Error(c, http.StatusNotFound, ErrScriptNotFound.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "failed to save rating")
		}
		return
	}

	response.OK(c, http.StatusOK, gin.H{
		"rating":        r.ToResponse(),
		"averageRating": agg.AverageRating,
		"ratingCount":   agg.RatingCount,
	}, "Rating added/updated successfully")
}

// GetUserRating returns the caller's rating for a script; an empty object
// means the caller has not rated it yet
func (h *Handler) GetUserRating(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	scriptID, err := uuid.Parse(c.Param("scriptId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid script ID")
		return
	}

	r, err := h.service.GetUserRating(scriptID, userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to retrieve rating")
		return
	}

	if r == nil {
		response.OK(c, http.StatusOK, gin.H{}, "Rating retrieved successfully")
		return
	}

	response.OK(c, http.StatusOK, r.ToResponse(), "Rating retrieved successfully")
}

// GetScriptRatings returns all ratings of a script with rater identities,
// newest first
func (h *Handler) GetScriptRatings(c *gin.Context) {
	scriptID, err := uuid.Parse(c.Param("scriptId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid script ID")
		return
	}

	ratings, err := h.service.GetScriptRatings(scriptID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to retrieve ratings")
		return
	}

	response.OK(c, http.StatusOK, ratings, "Script ratings retrieved successfully")
}

// DeleteRating removes the caller's own rating and returns the recomputed aggregate
func (h *Handler) DeleteRating(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(c.Param("ratingId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid rating ID")
		return
	}

	agg, err := h.service.DeleteRating(id, userID)
	if err != nil {
		if errors.Is(err, ErrRatingNotFound) {
			response.Error(c, http.StatusNotFound, ErrRatingNotFound.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, "failed to delete rating")
		}
		return
	}

	response.OK(c, http.StatusOK, gin.H{
		"averageRating": agg.AverageRating,
		"ratingCount":   agg.RatingCount,
	}, "Rating deleted successfully")
}

// RegisterRoutes registers all rating routes; rateLimiter may be a
// pass-through when no limiter is configured
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, authMiddleware, optionalAuthMiddleware, rateLimiter gin.HandlerFunc) {
	ratings := router.Group("/ratings")

	// Submission is open to guests; identity falls back to guestId or IP
	ratings.POST("/add-rating", rateLimiter, optionalAuthMiddleware, h.AddRating)

	ratings.GET("/get-script-ratings/:scriptId", h.GetScriptRatings)

	protected := ratings.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/get-user-rating/:scriptId", h.GetUserRating)
		protected.DELETE("/:ratingId", h.DeleteRating)
	}
}
