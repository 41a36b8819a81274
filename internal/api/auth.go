package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/pairfect/pkg/middleware"
)

// msgCredentialsRequired はメールアドレスかパスワードが欠けている場合のメッセージ。
const msgCredentialsRequired = "Email and password are required"

// credentialsRequest はサインアップとログインのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup はアカウントを作成するハンドラを返す。
// 入力が欠けている場合はプロバイダを呼び出さずに400を返す。
func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			middleware.AbortWithDetail(c, http.StatusBadRequest, msgCredentialsRequired)
			return
		}

		user, err := s.identity.CreateUser(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			middleware.AbortWithDetail(c, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Info("ユーザーを作成しました", zap.String("uid", user.UID))
		c.JSON(http.StatusCreated, gin.H{"message": fmt.Sprintf("Successfully created user %s", user.UID)})
	}
}

// handleLogin はパスワード認証を行い、トークンを返すハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			middleware.AbortWithDetail(c, http.StatusBadRequest, msgCredentialsRequired)
			return
		}

		token, err := s.identity.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			middleware.AbortWithDetail(c, http.StatusBadRequest, err.Error())
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// handlePing はBearerトークンが有効かどうかを確認するハンドラを返す。
func (s *Server) handlePing() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := middleware.Authenticate(c.Request.Context(), s.identity, c.GetHeader("Authorization"), s.logger)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		middleware.SetIdentity(c, id)
		c.JSON(http.StatusOK, gin.H{"message": "Token is valid", "uid": id.UID})
	}
}
