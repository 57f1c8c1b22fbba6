package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/middleware"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/response"
)

// actorGUID returns the caller's guid, empty for anonymous callers.
func actorGUID(c *gin.Context) string {
	return middleware.ActorGUID(c)
}

// requireActor writes 401 and returns false when the caller is anonymous.
func requireActor(c *gin.Context) (string, bool) {
	guid := actorGUID(c)
	if guid == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return guid, true
}

// bindJSON decodes the body and writes a validation error on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return false
	}
	return true
}

func listMeta(limit, offset, count int) map[string]interface{} {
	return map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"count":  count,
	}
}

func queryBool(c *gin.Context, key string, fallback bool) bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
