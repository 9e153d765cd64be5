package utils

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

const contextTrustProxyKey = "trust_proxy"

// TrustProxy marks whether X-Forwarded-Proto may be believed for this request. Install it first.
func TrustProxy(trust bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(contextTrustProxyKey, trust)
		ctx.Next()
	}
}

// RequestScheme returns the scheme the client used. X-Forwarded-Proto counts only behind
// TrustProxy(true).
func RequestScheme(ctx *gin.Context) string {
	if ctx.GetBool(contextTrustProxyKey) {
		switch proto := ctx.GetHeader("X-Forwarded-Proto"); proto {
		case "http", "https":
			return proto
		}
	}
	if ctx.Request.TLS != nil {
		return "https"
	}
	return "http"
}

// ExternalURL turns an absolute path into a full URL on the host the request came in on.
func ExternalURL(ctx *gin.Context, path string) string {
	return RequestScheme(ctx) + "://" + ctx.Request.Host + path
}

// PageURL is ExternalURL with a ?page= query.
func PageURL(ctx *gin.Context, path string, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s?%s", ExternalURL(ctx, path), q.Encode())
}
