package response

import (
	"github.com/gin-gonic/gin"
)

// Envelope is the uniform success body returned by every endpoint
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorEnvelope is the uniform failure body returned by every endpoint
type ErrorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

// New builds a success envelope without writing it
func New(statusCode int, data any, message string) Envelope {
	return Envelope{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < 400,
	}
}

// OK writes a success envelope with the given status code
func OK(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, New(statusCode, data, message))
}

// Error writes a failure envelope; details are optional field-level messages
func Error(c *gin.Context, statusCode int, message string, details ...string) {
	errs := details
	if errs == nil {
		errs = []string{}
	}
	c.JSON(statusCode, ErrorEnvelope{
		StatusCode: statusCode,
		Message:    message,
		Success:    false,
		Errors:     errs,
	})
}

// AbortError writes a failure envelope and stops the handler chain
func AbortError(c *gin.Context, statusCode int, message string, details ...string) {
	Error(c, statusCode, message, details...)
	c.Abort()
}
