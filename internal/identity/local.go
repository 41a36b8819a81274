package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/pairfect/pkg/apperror"
)

// localIssuer はローカル実装が発行するトークンのIssuer。
const localIssuer = "pairfect-local"

// minPasswordLength はFirebaseと同じパスワードの最小長。
const minPasswordLength = 6

// ローカル実装のエラーメッセージ。Firebaseのエラーコードに揃える。
const (
	msgInvalidEmail       = "INVALID_EMAIL"
	msgWeakPassword       = "WEAK_PASSWORD : Password should be at least 6 characters"
	msgEmailExists        = "EMAIL_EXISTS"
	msgInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
)

// localClaims はローカル実装が発行するJWTのクレーム。
type localClaims struct {
	jwt.RegisteredClaims
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

type localUser struct {
	uid          string
	email        string
	passwordHash []byte
}

// Local は開発用の Provider 実装。
// ユーザーはプロセスのメモリ上にのみ保持され、再起動で消える。
type Local struct {
	mu     sync.RWMutex
	users  map[string]localUser
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

var _ Provider = (*Local)(nil)

// NewLocal はHS256署名用の秘密鍵を指定してローカル実装を生成する。
func NewLocal(secret string) (*Local, error) {
	if secret == "" {
		return nil, errors.New("ローカルIDプロバイダの秘密鍵が空です")
	}
	return &Local{
		users:  make(map[string]localUser),
		secret: []byte(secret),
		ttl:    time.Hour,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}, nil
}

// CreateUser はメモリ上にユーザーを作成する。
func (l *Local) CreateUser(_ context.Context, email, password string) (*UserRecord, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, apperror.InvalidArgument(msgInvalidEmail)
	}
	if len(password) < minPasswordLength {
		return nil, apperror.InvalidArgument(msgWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, apperror.Unexpected("パスワードのハッシュ化に失敗", err)
	}

	key := strings.ToLower(email)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.users[key]; ok {
		return nil, apperror.InvalidArgument(msgEmailExists)
	}
	u := localUser{uid: uuid.NewString(), email: email, passwordHash: hash}
	l.users[key] = u

	return &UserRecord{UID: u.uid, Email: u.email}, nil
}

// SignIn はパスワードを照合し、HS256で署名したトークンを返す。
func (l *Local) SignIn(_ context.Context, email, password string) (string, error) {
	l.mu.RLock()
	u, ok := l.users[strings.ToLower(email)]
	l.mu.RUnlock()
	if !ok {
		return "", apperror.InvalidArgument(msgInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return "", apperror.InvalidArgument(msgInvalidCredentials)
	}

	now := l.now()
	claims := localClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.uid,
			Issuer:    localIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.ttl)),
		},
		Email: u.email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", apperror.Unexpected("トークンの署名に失敗", err)
	}
	return signed, nil
}

// VerifyToken はローカル実装が発行したトークンを検証する。
func (l *Local) VerifyToken(_ context.Context, token string) (*Identity, error) {
	claims := &localClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithTimeFunc(l.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, &apperror.Error{Kind: apperror.KindUnauthenticated, Message: "Invalid token", Err: err}
	}
	if claims.Subject == "" {
		return nil, apperror.Unauthenticated("Invalid token")
	}

	return &Identity{
		UID:   claims.Subject,
		Email: claims.Email,
		Claims: map[string]any{
			"uid":   claims.Subject,
			"email": claims.Email,
			"iss":   claims.Issuer,
			"exp":   claims.ExpiresAt.Unix(),
		},
	}, nil
}
