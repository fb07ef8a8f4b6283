package response

import (
	"errors"
	"net/http"

	"ledger-api/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// OK sends a 200 response with the payload as the body.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response with the payload as the body.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error sends an error response of the form {"error": "<message>", ...details}.
// It checks if err is an *apperror.AppError and maps it accordingly,
// otherwise returns a generic 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		body := gin.H{"error": appErr.Message}
		for k, v := range appErr.Details {
			body[k] = v
		}
		c.JSON(appErr.HTTPStatus, body)
		return
	}

	// Unknown error -> 500
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
