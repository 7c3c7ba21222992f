package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

const ContextRequesterID = "requester_id"

// Requester reads an optional bearer token and stores its subject as the
// requester id. Requests without a token pass through; a token that fails
// verification is rejected.
func Requester(parser *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !parser.Enabled() {
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		id, err := parser.RequesterID(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}

		c.Set(ContextRequesterID, id)
		c.Next()
	}
}

// RequesterID returns the requester taken from the token, if any.
func RequesterID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(ContextRequesterID)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
