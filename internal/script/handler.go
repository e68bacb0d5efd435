package script

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/finsight/scripts-backend/internal/utils"
	"github.com/finsight/scripts-backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for script operations
type Handler struct {
	service Service
}

// NewHandler creates a new script handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// CreateScript handles multipart script creation with an optional image
func (h *Handler) CreateScript(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	title := c.PostForm("title")
	description := c.PostForm("description")

	image, src, ok := openImage(c)
	if !ok {
		return
	}
	if src != nil {
		defer src.Close()
	}

	sc, err := h.service.CreateScript(c.Request.Context(), userID, title, description, image)
	if err != nil {
		switch {
		case errors.Is(err, ErrTitleRequired):
			response.Error(c, http.StatusBadRequest, ErrTitleRequired.Error())
		case errors.Is(err, ErrImageUpload):
			response.Error(c, http.StatusInternalServerError, ErrImageUpload.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "failed to create script")
		}
		return
	}

	response.OK(c, http.StatusCreated, sc.ToResponse(), "Script created successfully")
}

// GetAllScripts returns every script joined with its owner and live aggregate
func (h *Handler) GetAllScripts(c *gin.Context) {
	listings, err := h.service.ListScripts()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to retrieve scripts")
		return
	}

	response.OK(c, http.StatusOK, listings, "Scripts retrieved successfully")
}

// GetMyScripts returns the caller's own scripts
func (h *Handler) GetMyScripts(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	scripts, err := h.service.GetMyScripts(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to retrieve scripts")
		return
	}

	out := make([]*ScriptResponse, 0, len(scripts))
	for _, sc := range scripts {
		out = append(out, sc.ToResponse())
	}

	response.OK(c, http.StatusOK, out, "User scripts retrieved successfully")
}

// GetScriptByID returns a single script with nested ratings
func (h *Handler) GetScriptByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid script ID")
		return
	}

	detail, err := h.service.GetScriptByID(id)
	if err != nil {
		response.Error(c, http.StatusNotFound, ErrScriptNotFound.Error())
		return
	}

	response.OK(c, http.StatusOK, detail, "Script retrieved successfully")
}

// UpdateScript handles partial updates; omitted fields keep previous values
func (h *Handler) UpdateScript(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid script ID")
		return
	}

	title := c.PostForm("title")
	description := c.PostForm("description")

	image, src, ok := openImage(c)
	if !ok {
		return
	}
	if src != nil {
		defer src.Close()
	}

	sc, err := h.service.UpdateScript(c.Request.Context(), id, userID, title, description, image)
	if err != nil {
		switch {
		case errors.Is(err, ErrScriptNotFound):
			response.Error(c, http.StatusNotFound, ErrScriptNotFound.Error())
		case errors.Is(err, ErrImageUpload):
			response.Error(c, http.StatusInternalServerError, "error updating image")
		default:
			response.Error(c, http.StatusInternalServerError, "failed to update script")
		}
		return
	}

	response.OK(c, http.StatusOK, sc.ToResponse(), "Script updated successfully")
}

// DeleteScript handles cascade deletion of a script, its ratings, and its image
func (h *Handler) DeleteScript(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid script ID")
		return
	}

	if err := h.service.DeleteScript(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, ErrScriptNotFound) {
			response.Error(c, http.StatusNotFound, ErrScriptNotFound.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, "failed to delete script")
		}
		return
	}

	response.OK(c, http.StatusOK, gin.H{}, "Script deleted successfully")
}

// RegisterRoutes registers all script routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	scripts := router.Group("/scripts")

	// Public listing
	scripts.GET("/get-all-scripts", h.GetAllScripts)

	protected := scripts.Group("")
	protected.Use(authMiddleware)
	{
		protected.POST("/create-script", h.CreateScript)
		protected.GET("/get-my-scripts", h.GetMyScripts)
		protected.GET("/get-scripts-by-id/:id", h.GetScriptByID)
		protected.PATCH("/update-script/:id", h.UpdateScript)
		protected.DELETE("/deleteScript/:id", h.DeleteScript)
	}
}

// openImage reads an optional multipart "image" field; ok is false only when
// a file was supplied but could not be opened (the error is already written)
func openImage(c *gin.Context) (*imagestore.Upload, multipart.File, bool) {
	file, err := c.FormFile("image")
	if err != nil || file == nil {
		return nil, nil, true
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "unable to read image")
		return nil, nil, false
	}

	return &imagestore.Upload{
		Reader:      src,
		Size:        file.Size,
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
	}, src, true
}
