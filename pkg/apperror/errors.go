package apperror

import (
	"errors"
	"net/http"
)

// Kind はエラーの分類。HTTPステータスコードへの対応付けに使用する。
type Kind int

const (
	// KindUnexpected は分類されていない想定外のエラー。
	KindUnexpected Kind = iota
	// KindInvalidArgument は入力不正、重複アカウント、認証情報の誤りなど。
	KindInvalidArgument
	// KindUnauthenticated はBearerトークンの欠落・不正・期限切れ。
	KindUnauthenticated
	// KindUpstream は検索プロバイダとの通信失敗。
	KindUpstream
)

// String はログ出力用の分類名を返す。
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUpstream:
		return "upstream"
	default:
		return "unexpected"
	}
}

// Error は分類付きのアプリケーションエラー。
// Message はクライアントへそのまま返却される。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Err は原因となったエラー。nilの場合もある。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidArgument は入力不正を表すエラーを生成する。
func InvalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

// Unauthenticated は認証失敗を表すエラーを生成する。
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// Upstream は外部プロバイダとの通信失敗を表すエラーを生成する。
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Unexpected は想定外のエラーを生成する。
func Unexpected(msg string, err error) *Error {
	return &Error{Kind: KindUnexpected, Message: msg, Err: err}
}

// KindOf はエラーチェーンから分類を取り出す。
// *Error を含まないエラーは KindUnexpected として扱う。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// Is は err が指定した分類のエラーであるかを返す。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus は分類に対応するHTTPステータスコードを返す。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
