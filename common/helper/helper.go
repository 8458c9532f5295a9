package helper

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common/random"
)

// GenRequestID produces a sortable request identifier from the current time
// plus a random numeric suffix.
func GenRequestID() string {
	return GetTimeString() + random.GetRandomNumberString(8)
}

func MessageWithRequestId(message string, id string) string {
	return fmt.Sprintf("%s (request id: %s)", message, id)
}

// RespondError writes the admin API envelope for a failed operation.
func RespondError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": err.Error(),
	})
}
