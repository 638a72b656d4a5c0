package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-lms-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// SetCacheHit marks whether the payload was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	Meta(c)["cache_hit"] = hit
}

// Meta returns the response metadata collected for the request, creating it on first use.
// The request id is always included.
func Meta(c *gin.Context) map[string]interface{} {
	if value, exists := c.Get(responseMetaKey); exists {
		if meta, ok := value.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := map[string]interface{}{}
	if id := requestid.Value(c); id != "" {
		meta["request_id"] = id
	}
	c.Set(responseMetaKey, meta)
	return meta
}
