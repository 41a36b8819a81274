package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、500エラーを返す。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("パニックから回復",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				AbortWithDetail(c, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		c.Next()
	}
}
