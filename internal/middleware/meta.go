package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-warning-api/pkg/middleware/requestid"
)

const responseMetaKey = "warnings.response_meta"

// ResponseMeta opens the per-request meta map that cached warning reads report into.
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// CacheMeta stamps whether the payload was served from the warnings cache and how long
// the request took, and returns the map for the response envelope.
func CacheMeta(c *gin.Context, hit bool, since time.Time) map[string]interface{} {
	meta := responseMeta(c)
	meta["cache_hit"] = hit
	meta["processing_time_ms"] = time.Since(since).Milliseconds()
	if id := requestid.Value(c); id != "" {
		meta["request_id"] = id
	}
	return meta
}

func responseMeta(c *gin.Context) map[string]interface{} {
	if value, ok := c.Get(responseMetaKey); ok {
		if meta, ok := value.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := map[string]interface{}{}
	c.Set(responseMetaKey, meta)
	return meta
}
