package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
	HeaderRequestID = "X-Request-ID"
	// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
	contextKeyRequestID = "request_id"
)

// maxRequestIDLength は受け入れるリクエストIDの最大長。
const maxRequestIDLength = 128

// RequestID はリクエストごとにIDを付与するGinミドルウェアを返す。
// 受信したX-Request-IDがあればそれを使い、無ければUUIDを生成する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
