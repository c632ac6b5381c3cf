package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/config"
	"github.com/shinyyama/paychat-backend/internal/logger"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a bearer token into the caller's uid.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier verifies Firebase ID tokens for projectID.
func NewFirebaseVerifier(ctx context.Context, projectID string) (TokenVerifier, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}
	return t.UID, nil
}

type jwtVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier accepts HS256 tokens whose subject is the uid.
func NewJWTVerifier(secret string) TokenVerifier {
	return &jwtVerifier{secret: []byte(secret), now: time.Now}
}

func (v *jwtVerifier) Verify(_ context.Context, raw string) (string, error) {
	if len(v.secret) == 0 || strings.TrimSpace(raw) == "" {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil || token == nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// NewVerifier prefers Firebase when a project id is configured.
func NewVerifier(ctx context.Context, cfg *config.Config) (TokenVerifier, error) {
	if cfg.FirebaseProjectID != "" {
		return NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
	}
	if cfg.JWTSecret != "" {
		return NewJWTVerifier(cfg.JWTSecret), nil
	}
	return nil, errors.New("no token verifier configured")
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]map[string]string{
				"error": {"code": "unauthorized", "message": "missing bearer token"},
			})
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		uid, err := m.verifier.Verify(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]map[string]string{
				"error": {"code": "invalid_token", "message": "invalid token"},
			})
		}
		c.Set("uid", uid)

		ctx := c.Request().Context()
		log := logger.FromContext(ctx).With().Str("uid", uid).Logger()
		c.SetRequest(c.Request().WithContext(logger.WithContext(ctx, log)))
		return next(c)
	}
}
