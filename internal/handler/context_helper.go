package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-warning-api/internal/middleware"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) string {
	return claimsFromContext(c).Actor()
}

// queryList reads a repeated or comma separated query parameter.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+" parameter")
	}
	return &val, nil
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

// queryTime accepts RFC3339 timestamps or YYYY-MM-DD dates (UTC midnight).
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	parsed, _, err := parseQueryTime(c, key)
	return parsed, err
}

// queryUntil is queryTime for inclusive upper bounds: a bare date covers the whole day.
func queryUntil(c *gin.Context, key string) (*time.Time, error) {
	parsed, dateOnly, err := parseQueryTime(c, key)
	if err != nil || parsed == nil || !dateOnly {
		return parsed, err
	}
	end := models.EndOfDay(*parsed)
	return &end, nil
}

func parseQueryTime(c *gin.Context, key string) (*time.Time, bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, false, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, false, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+" parameter")
	}
	return &parsed, true, nil
}
