package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// AllowAllOrigins は全オリジンを許可する指定。
	AllowAllOrigins = "*"

	defaultAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	defaultAllowHeaders = "Authorization, Content-Type"
)

// CORS はクロスオリジンリクエストを許可するGinミドルウェアを返す。
//
// allowedOrigins に "*" を含む場合は全オリジンを許可し、リクエストの
// Origin、Access-Control-Request-Method、Access-Control-Request-Headers を
// そのまま反射する。資格情報付きリクエストも許可するため、公開範囲の広い
// 設定である点に注意すること。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == AllowAllOrigins {
			allowAll = true
		}
		originsSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, listed := originsSet[origin]
		if origin != "" && (allowAll || listed) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")

			methods := c.GetHeader("Access-Control-Request-Method")
			if methods == "" {
				methods = defaultAllowMethods
			}
			headers := c.GetHeader("Access-Control-Request-Headers")
			if headers == "" {
				headers = defaultAllowHeaders
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
