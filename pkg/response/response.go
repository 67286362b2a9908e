package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the uniform API envelope.
type Body struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a 200 envelope with optional data.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Message: message, Data: data})
}

// Fail writes a 400 envelope for validation and request errors.
func Fail(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Message: message, Data: data})
}

// NotFound writes a 404 envelope for absent resources.
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Message: message})
}

// ServerError writes a 500 envelope for unexpected failures.
func ServerError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Message: message})
}
