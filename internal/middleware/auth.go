// Package middleware содержит HTTP middleware веб-интерфейса синхронизации.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

const authRealm = `Basic realm="ordersync", charset="UTF-8"`

// AuthMiddleware защищает страницы интерфейса HTTP Basic аутентификацией.
type AuthMiddleware struct {
	username [sha256.Size]byte
	password [sha256.Size]byte
	enabled  bool
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустых учётных данных проверка отключена.
func NewAuthMiddleware(username, password string) *AuthMiddleware {
	return &AuthMiddleware{
		username: sha256.Sum256([]byte(username)),
		password: sha256.Sum256([]byte(password)),
		enabled:  username != "" && password != "",
	}
}

// Enabled сообщает, включена ли проверка.
func (a *AuthMiddleware) Enabled() bool {
	return a.enabled
}

// Middleware проверяет заголовок Authorization и отвечает 401 при несовпадении.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !a.match(user, pass) {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// match сравнивает хэши, чтобы время сравнения не зависело от длины.
func (a *AuthMiddleware) match(user, pass string) bool {
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], a.username[:]) == 1
	passOK := subtle.ConstantTimeCompare(p[:], a.password[:]) == 1
	return userOK && passOK
}
