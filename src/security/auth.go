package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const AdminRole = "admin"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNotAdmin     = errors.New("token does not carry the admin role")
)

// AuthService validates the HS256 bearer tokens that guard partner rate
// administration. Tokens are issued by an external identity provider that
// shares the secret; GenerateToken exists for tooling and tests.
type AuthService struct {
	JWTSecret string
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		JWTSecret: secret,
	}
}

// Enabled reports whether a secret is configured. Without one, admin
// endpoints refuse every request.
func (a *AuthService) Enabled() bool { return a != nil && a.JWTSecret != "" }

func (a *AuthService) GenerateToken(subject, role string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

// ValidateToken returns the subject of a valid token.
func (a *AuthService) ValidateToken(tokenString string) (string, jwt.MapClaims, error) {
	if !a.Enabled() {
		return "", nil, fmt.Errorf("%w: jwt secret not configured", ErrInvalidToken)
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", nil, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", nil, fmt.Errorf("%w: 'sub' claim missing or not a string", ErrInvalidToken)
	}
	return sub, claims, nil
}

// ValidateAdminToken is ValidateToken plus a check for the admin role.
func (a *AuthService) ValidateAdminToken(tokenString string) (string, error) {
	sub, claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if role, _ := claims["role"].(string); role != AdminRole {
		return "", ErrNotAdmin
	}
	return sub, nil
}
