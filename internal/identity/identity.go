// Package identity resolves who is writing: a signed token when the
// client has one, an anonymous per-browser id otherwise.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mysokha/internal/core"
	"mysokha/internal/log"
)

const (
	TokenCookie  = "mysokha_token"
	ClientCookie = "mysokha_client"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the resolved caller of one request.
type Identity struct {
	ClientID string
	Subject  string // empty for anonymous callers
	// Shared is set when Subject comes from the deployment's initial token
	// rather than from the request, so every browser may carry it.
	Shared bool
}

func (i Identity) Anonymous() bool { return i.Subject == "" }

// AddedBy is the string stamped on new expenses.
func (i Identity) AddedBy() string {
	if i.Subject != "" {
		return i.Subject
	}
	if i.ClientID != "" {
		return "anon:" + i.ClientID
	}
	return core.AnonymousIdentity
}

// Verifier checks HS256 tokens. A deployment may inject an initial token
// that applies to clients without their own.
type Verifier struct {
	secret       []byte
	initialToken string
	logger       *log.Logger
}

func NewVerifier(secret, initialToken string, logger *log.Logger) *Verifier {
	return &Verifier{
		secret:       []byte(secret),
		initialToken: strings.TrimSpace(initialToken),
		logger:       logger.WithComponent(log.ComponentIdentity),
	}
}

// Verify returns the token subject.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	if uid, ok := claims["user_id"].(string); ok && uid != "" {
		return uid, nil
	}
	return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
}

// Issue signs a token for subject. ttl <= 0 means no expiry.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"sub": subject, "iat": time.Now().Unix()}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Resolve works out the identity of r. Invalid tokens fall back to
// anonymous; they are logged, never fatal.
func (v *Verifier) Resolve(r *http.Request) Identity {
	id := Identity{}
	if c, err := r.Cookie(ClientCookie); err == nil {
		id.ClientID = c.Value
	}
	for i, tok := range []string{bearer(r), cookieValue(r, TokenCookie), v.initialToken} {
		if tok == "" {
			continue
		}
		sub, err := v.Verify(tok)
		if err != nil {
			v.logger.DebugContext(r.Context(), "Ignoring identity token", log.FieldError, err)
			continue
		}
		id.Subject = sub
		id.Shared = i == 2
		break
	}
	return id
}

type ctxKey struct{}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware gives every browser a stable client id cookie and stores the
// resolved identity in the request context.
func (v *Verifier) Middleware(secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := v.Resolve(r)
			if id.ClientID == "" {
				id.ClientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    id.ClientID,
					Path:     "/",
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
