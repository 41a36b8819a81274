package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/pairfect/internal/identity"
	"github.com/nao1215/pairfect/pkg/apperror"
)

// 認証ゲートが返すエラーメッセージ。
const (
	MsgAuthorizationMissing = "Authorization header missing"
	MsgBearerRequired       = "Authorization header must contain a Bearer token"
	MsgInvalidToken         = "Invalid token"
)

const (
	// bearerPrefix はAuthorizationヘッダーに要求する接頭辞。
	bearerPrefix = "Bearer "
	// headerKeyUserID は認証済みユーザーIDを返すHTTPヘッダーキー。
	headerKeyUserID = "X-User-ID"
	// contextKeyIdentity はGinコンテキストに認証済みユーザー情報を格納するキー。
	contextKeyIdentity = "identity"
)

// identityContextKey はcontext.Contextに認証済みユーザー情報を格納するキーの型。
type identityContextKey struct{}

// TokenVerifier はBearerトークンを検証する。identity.Provider がこれを満たす。
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*identity.Identity, error)
}

// ExtractBearerToken はAuthorizationヘッダーの値からトークンを取り出す。
// ヘッダーが空の場合と "Bearer " で始まらない場合は Unauthenticated を返す。
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", apperror.Unauthenticated(MsgAuthorizationMissing)
	}
	token, found := strings.CutPrefix(header, bearerPrefix)
	if !found {
		return "", apperror.Unauthenticated(MsgBearerRequired)
	}
	return token, nil
}

// Authenticate はAuthorizationヘッダーを検証し、認証済みユーザー情報を返す。
// 検証失敗の理由はログにのみ出力し、呼び出し元には "Invalid token" だけを返す。
func Authenticate(ctx context.Context, verifier TokenVerifier, header string, logger *zap.Logger) (*identity.Identity, error) {
	token, err := ExtractBearerToken(header)
	if err != nil {
		return nil, err
	}

	id, err := verifier.VerifyToken(ctx, token)
	if err != nil || id == nil {
		logger.Warn("トークン検証に失敗", zap.Error(err))
		return nil, &apperror.Error{Kind: apperror.KindUnauthenticated, Message: MsgInvalidToken, Err: err}
	}
	return id, nil
}

// BearerAuth は保護対象のルートの前段に置く認証ゲートを返す。
// 検証に成功した場合、認証済みユーザー情報をコンテキストに設定して後続に処理を渡す。
func BearerAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := Authenticate(c.Request.Context(), verifier, c.GetHeader("Authorization"), logger)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

// SetIdentity は認証済みユーザー情報をGinコンテキストとリクエストのcontextの両方に設定する。
func SetIdentity(c *gin.Context, id *identity.Identity) {
	c.Set(contextKeyIdentity, id)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityContextKey{}, id))
	c.Header(headerKeyUserID, id.UID)
}

// IdentityFrom はGinコンテキストから認証済みユーザー情報を取得する。
// BearerAuthミドルウェアが事前に適用されている必要がある。
func IdentityFrom(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok && id != nil
}

// IdentityFromContext はcontext.Contextから認証済みユーザー情報を取得する。
func IdentityFromContext(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*identity.Identity)
	return id, ok && id != nil
}

// GetUserID はGinコンテキストからユーザーIDを取得する。未認証の場合は空文字列。
func GetUserID(c *gin.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return id.UID
	}
	return ""
}

// AbortWithError はエラーの分類に応じたステータスで {"detail": ...} を返し、処理を中断する。
func AbortWithError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)
	detail := err.Error()
	if kind == apperror.KindUnexpected {
		detail = "Internal Server Error"
	}
	AbortWithDetail(c, status, detail)
}

// AbortWithDetail は指定したステータスで {"detail": ...} を返し、処理を中断する。
func AbortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
