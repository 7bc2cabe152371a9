package responses

import (
	"github.com/gin-gonic/gin"
)

func JSONSuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// JSONErrorResponse sends a structured error. The "error" field carries the
// short machine-readable kind (e.g. "busy", "not_found"); "detail" carries
// the human-readable explanation, if any.
func JSONErrorResponse(c *gin.Context, statusCode int, kind string, detail interface{}) {
	body := gin.H{"error": kind}
	if detail != nil && detail != "" {
		body["detail"] = detail
	}
	c.JSON(statusCode, body)
	c.Abort()
}
