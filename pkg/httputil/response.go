package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/validator"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Fields  []validator.FieldError `json:"fields,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(page, pageSize int, total int64) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPages,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	appErr := errors.As(err)
	statusCode := appErr.StatusCode()
	message := appErr.Message
	if statusCode == http.StatusInternalServerError {
		message = "Internal server error"
	}

	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    int(appErr.Code),
			Message: message,
		},
	})
}

// RespondWithBindError reports a request that failed to bind or validate.
func RespondWithBindError(c *gin.Context, err error) {
	fields := validator.Describe(err)
	message := "invalid request"
	if fields == nil {
		message = "invalid request: " + err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    int(errors.CodeBadRequest),
			Message: message,
			Fields:  fields,
		},
	})
}

// UUIDParam parses a path parameter as a UUID.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errors.BadRequest("invalid "+name, err)
	}
	return id, nil
}

// UUIDQuery parses an optional query parameter as a UUID.
func UUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.BadRequest("invalid "+name, err)
	}
	return &id, nil
}
