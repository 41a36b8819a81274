package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/pairfect/internal/search"
	"github.com/nao1215/pairfect/pkg/apperror"
	"github.com/nao1215/pairfect/pkg/middleware"
)

// pairRequest は/api/pairのリクエストボディ。
// クエリ文字列に値がある場合はそちらが優先される。
type pairRequest struct {
	Keyword    string `json:"keyword"`
	MaxResults *int   `json:"max_results"`
}

// pairResponse は/api/pairのレスポンス。
type pairResponse struct {
	Keyword        string          `json:"keyword"`
	MatchingImages []search.Result `json:"matching_images"`
}

// handlePair はキーワードで画像を検索するハンドラを返す。
// 入力不正は400、それ以外の失敗は "Unexpected error: ..." として500を返す。
func (s *Server) handlePair() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyword, maxResults, err := parsePairRequest(c)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		images, err := s.search.Search(c.Request.Context(), keyword, search.ClampMaxResults(maxResults))
		if err != nil {
			if apperror.Is(err, apperror.KindInvalidArgument) {
				middleware.AbortWithDetail(c, http.StatusBadRequest, err.Error())
				return
			}
			s.logger.Error("画像検索に失敗",
				zap.String("uid", middleware.GetUserID(c)),
				zap.Stringer("kind", apperror.KindOf(err)),
				zap.Error(err),
			)
			middleware.AbortWithDetail(c, http.StatusInternalServerError, "Unexpected error: "+err.Error())
			return
		}
		if images == nil {
			images = []search.Result{}
		}

		c.JSON(http.StatusOK, pairResponse{Keyword: keyword, MatchingImages: images})
	}
}

// parsePairRequest はクエリ文字列とJSONボディからキーワードと取得件数を読み取る。
func parsePairRequest(c *gin.Context) (string, int, error) {
	var body pairRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		if c.Query("keyword") == "" {
			return "", 0, apperror.InvalidArgument("Invalid request body")
		}
	}

	keyword := c.DefaultQuery("keyword", body.Keyword)
	if strings.TrimSpace(keyword) == "" {
		return "", 0, apperror.InvalidArgument("keyword is required")
	}

	maxResults := search.DefaultResults
	if body.MaxResults != nil {
		maxResults = *body.MaxResults
	}
	if raw, ok := c.GetQuery("max_results"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return "", 0, apperror.InvalidArgument("max_results must be an integer")
		}
		maxResults = n
	}

	return keyword, maxResults, nil
}
