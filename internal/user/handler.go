package user

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/finsight/scripts-backend/internal/utils"
	"github.com/finsight/scripts-backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for user operations
type Handler struct {
	service       Service
	secureCookies bool
}

// NewHandler creates a new user handler; cookies are marked Secure outside development
func NewHandler(service Service, environment string) *Handler {
	return &Handler{
		service:       service,
		secureCookies: environment == "production",
	}
}

// Register handles user registration with an optional multipart profile image
func (h *Handler) Register(c *gin.Context) {
	in := RegisterInput{
		FullName:    c.PostForm("fullname"),
		Email:       c.PostForm("email"),
		Username:    c.PostForm("username"),
		Password:    c.PostForm("password"),
		PhoneNumber: c.PostForm("phoneNumber"),
	}

	file, err := c.FormFile("profileImage")
	if err == nil && file != nil {
		src, openErr := file.Open()
		if openErr != nil {
			response.Error(c, http.StatusBadRequest, "unable to read profile image")
			return
		}
		defer src.Close()
		in.Image = uploadFromFile(file, src)
	}

	created, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		var vErr *ValidationError
		var cErr *ConflictError
		switch {
		case errors.As(err, &vErr):
			response.Error(c, http.StatusBadRequest, vErr.Error(), vErr.Fields...)
		case errors.As(err, &cErr):
			response.Error(c, http.StatusConflict, cErr.Error())
		case errors.Is(err, ErrImageUpload):
			response.Error(c, http.StatusInternalServerError, ErrImageUpload.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "user registration failed")
		}
		return
	}

	response.OK(c, http.StatusCreated, created.ToResponse(), "User registered successfully")
}

// Login handles user authentication by username or email
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		response.Error(c, http.StatusBadRequest, "username or email is required")
		return
	}

	u, pair, err := h.service.Login(identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			response.Error(c, http.StatusNotFound, ErrUserNotFound.Error())
		case errors.Is(err, ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "login failed")
		}
		return
	}

	h.setAuthCookies(c, pair)

	response.OK(c, http.StatusOK, gin.H{
		"user":         u.ToResponse(),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "User logged in successfully")
}

// Refresh rotates the token pair; the refresh token is read from the cookie
// or, failing that, the request body
func (h *Handler) Refresh(c *gin.Context) {
	incoming, _ := c.Cookie("refreshToken")
	if incoming == "" {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			incoming = req.RefreshToken
		}
	}
	if incoming == "" {
		response.Error(c, http.StatusUnauthorized, "refresh token is required")
		return
	}

	_, pair, err := h.service.Refresh(incoming)
	if err != nil {
		switch {
		case errors.Is(err, ErrRefreshTokenReused), errors.Is(err, ErrInvalidRefreshToken):
			response.Error(c, http.StatusUnauthorized, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "token refresh failed")
		}
		return
	}

	h.setAuthCookies(c, pair)

	response.OK(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Access token refreshed successfully")
}

// Logout clears the stored refresh token and both auth cookies
func (h *Handler) Logout(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.Logout(userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "logout failed")
		return
	}

	h.clearAuthCookies(c)

	response.OK(c, http.StatusOK, gin.H{}, "User logged out successfully")
}

// ChangePassword rotates the stored password hash
func (h *Handler) ChangePassword(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		case errors.Is(err, ErrUserNotFound):
			response.Error(c, http.StatusNotFound, ErrUserNotFound.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "password change failed")
		}
		return
	}

	response.OK(c, http.StatusOK, gin.H{}, "Password changed successfully")
}

// ChangeProfileImage replaces the caller's externally hosted profile image
func (h *Handler) ChangeProfileImage(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	file, err := c.FormFile("profileImage")
	if err != nil || file == nil {
		response.Error(c, http.StatusBadRequest, "profile image is required")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "unable to read profile image")
		return
	}
	defer src.Close()

	updated, err := h.service.ChangeProfileImage(c.Request.Context(), userID, *uploadFromFile(file, src))
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			response.Error(c, http.StatusNotFound, ErrUserNotFound.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "profile image update failed")
		}
		return
	}

	response.OK(c, http.StatusOK, updated.ToResponse(), "Profile image updated successfully")
}

// AuthMiddleware creates middleware for JWT authentication; the token is read
// from the accessToken cookie or the Authorization header
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractAccessToken(c)
		if tokenString == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		u, err := h.service.ValidateAccessToken(tokenString)
		if err != nil {
			response.AbortError(c, http.StatusUnauthorized, "invalid access token")
			return
		}

		// Store user in context for handlers
		c.Set("user", u)
		c.Set("user_id", u.ID)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the user when a valid token is present and
// falls through anonymously otherwise
func (h *Handler) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractAccessToken(c); tokenString != "" {
			if u, err := h.service.ValidateAccessToken(tokenString); err == nil {
				c.Set("user", u)
				c.Set("user_id", u.ID)
			}
		}
		c.Next()
	}
}

// RegisterRoutes registers all user routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/users")

	// Public routes
	users.POST("/register", h.Register)
	users.POST("/login", h.Login)
	users.POST("/refresh", h.Refresh)

	// Protected routes
	protected := users.Group("")
	protected.Use(h.AuthMiddleware())
	{
		protected.POST("/logout", h.Logout)
		protected.PATCH("/change-password", h.ChangePassword)
		protected.PATCH("/change-profile-image", h.ChangeProfileImage)
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, pair TokenPair) {
	accessTTL, refreshTTL := h.service.TokenTTLs()
	c.SetCookie("accessToken", pair.AccessToken, int(accessTTL.Seconds()), "/", "", h.secureCookies, true)
	c.SetCookie("refreshToken", pair.RefreshToken, int(refreshTTL.Seconds()), "/", "", h.secureCookies, true)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetCookie("accessToken", "", -1, "/", "", h.secureCookies, true)
	c.SetCookie("refreshToken", "", -1, "/", "", h.secureCookies, true)
}

func extractAccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie("accessToken"); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return ""
	}
	return tokenString
}

func uploadFromFile(file *multipart.FileHeader, src multipart.File) *imagestore.Upload {
	return &imagestore.Upload{
		Reader:      src,
		Size:        file.Size,
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
	}
}
