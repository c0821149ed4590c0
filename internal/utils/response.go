package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StatusClientClosedRequest is returned when the caller went away before
// the crawl finished.
const StatusClientClosedRequest = 499

// Response defines the standard API response envelope.
type Response struct {
	Success bool       `json:"success"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    Meta       `json:"meta"`
}

// ErrorInfo provides details for error responses.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains request-scoped metadata.
type Meta struct {
	RequestID  string      `json:"requestId"`
	Timestamp  string      `json:"timestamp"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Success writes a success response with the standard envelope.
func Success(c *gin.Context, code int, message string, data any) {
	c.JSON(code, Response{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
		Meta: Meta{
			RequestID: getRequestID(c),
			Timestamp: time.Now().Format(time.RFC3339),
		},
	})
}

// SuccessWithPagination writes a success response with pagination metadata.
func SuccessWithPagination(c *gin.Context, code int, message string, data any, page, limit, totalItems int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	totalPages := (totalItems + limit - 1) / limit
	c.JSON(code, Response{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
		Meta: Meta{
			RequestID: getRequestID(c),
			Timestamp: time.Now().Format(time.RFC3339),
			Pagination: &Pagination{
				Page:       page,
				Limit:      limit,
				TotalItems: totalItems,
				TotalPages: totalPages,
			},
		},
	})
}

// Error writes an error response with provided API error code and message.
func Error(c *gin.Context, code int, errCode, message string) {
	ErrorWithData(c, code, errCode, message, nil)
}

// ErrorWithData writes an error response that still carries a payload, such
// as the job record of a failed crawl.
func ErrorWithData(c *gin.Context, code int, errCode, message string, data any) {
	c.JSON(code, Response{
		Success: false,
		Code:    code,
		Message: message,
		Data:    data,
		Error: &ErrorInfo{
			Code:    errCode,
			Message: message,
		},
		Meta: Meta{
			RequestID: getRequestID(c),
			Timestamp: time.Now().Format(time.RFC3339),
		},
	})
}

func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return uuid.New().String()[:8]
}

// StatusOf maps a service error to its HTTP status and API error code.
func StatusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, ErrInvalidArgument.Error()
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound, ErrJobNotFound.Error()
	case errors.Is(err, ErrSnapshotNotFound):
		return http.StatusNotFound, ErrSnapshotNotFound.Error()
	case errors.Is(err, ErrAllCrawlersFailed):
		return http.StatusBadGateway, "CRAWL_FAILED"
	case errors.Is(err, ErrJobCancelled):
		return StatusClientClosedRequest, ErrJobCancelled.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// ErrorFrom writes the envelope for err. Internal errors are logged and
// replaced by a generic message.
func ErrorFrom(c *gin.Context, err error, data any) {
	code, errCode := StatusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", getRequestID(c)).Str("path", c.FullPath()).Msg("Request failed")
		msg = "internal server error"
	}
	ErrorWithData(c, code, errCode, msg, data)
}
