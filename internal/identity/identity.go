package identity

import "context"

// UserRecord はIDプロバイダに作成されたユーザー。
type UserRecord struct {
	// UID はプロバイダが採番したユーザーID。
	UID string
	// Email はユーザーのメールアドレス。
	Email string
}

// Identity はトークン検証で得られた認証済みユーザー情報。
// 1リクエストの間だけ存在し、セッションとして保存されることはない。
type Identity struct {
	// UID は認証済みユーザーの一意識別子。
	UID string
	// Email はトークンに含まれるメールアドレス。含まれない場合は空文字列。
	Email string
	// Claims はプロバイダが発行したクレーム。
	Claims map[string]any
}

// Provider はIDプロバイダの操作を定義する。
// 失敗時は apperror で分類されたエラーを返す。
type Provider interface {
	// CreateUser はメールアドレスとパスワードでアカウントを作成する。
	CreateUser(ctx context.Context, email, password string) (*UserRecord, error)
	// SignIn はパスワード認証を行い、Bearerトークンを返す。
	SignIn(ctx context.Context, email, password string) (string, error)
	// VerifyToken はBearerトークンを検証し、認証済みユーザー情報を返す。
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}
