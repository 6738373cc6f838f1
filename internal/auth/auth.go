package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iurnickita/collection/internal/auth/config"
	"github.com/iurnickita/collection/internal/token"
)

type Auth interface {
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

const (
	HeaderUserCodeKey = "X-User-Code"
	cookieUserToken   = "collectionUserToken"
)

var ErrNoToken = errors.New("no user token")

type auth struct {
	secretKey string
}

func NewAuth(cfg config.Config) Auth {
	return &auth{secretKey: cfg.SecretKey}
}

// Middleware определяет пользователя по токену и передает его код хендлеру в заголовке.
func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userCode, err := a.getUserCode(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		r.Header.Set(HeaderUserCodeKey, userCode)

		h.ServeHTTP(w, r)
	}
}

func (a *auth) getUserCode(r *http.Request) (string, error) {
	var tokenString string
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		tokenString = bearer
	} else if tokenCookie, err := r.Cookie(cookieUserToken); err == nil {
		tokenString = tokenCookie.Value
	}
	if tokenString == "" {
		return "", ErrNoToken
	}
	return token.GetUserCode(tokenString, a.secretKey)
}
