package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/pkg/httputil"
)

// DefaultMaxBodySize covers a full-calendar replace with every slot filled.
const DefaultMaxBodySize = 1 << 20

// SizeLimit caps request bodies. Oversized declared lengths are rejected
// up front; chunked bodies fail on read once they cross the cap.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.Error{
					Code:    http.StatusRequestEntityTooLarge,
					Message: "Request size exceeds limit",
				},
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
