package auth

import (
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rulegate/internal/models"
)

// tokenTTL bounds how long an issued operator token stays valid.
const tokenTTL = 24 * time.Hour

// Service encapsulates JWT issuance and validation.
type Service struct {
	tokenAuth *jwtauth.JWTAuth
}

// New creates a new auth service.
func New(secret []byte) *Service {
	return &Service{
		tokenAuth: jwtauth.New("HS256", secret, nil),
	}
}

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a clear password.
func CheckPassword(hash string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// IssueToken returns a signed JWT for the provided operator.
func (s *Service) IssueToken(user models.User) (string, error) {
	now := time.Now()
	expires := jwt.NewNumericDate(now.Add(tokenTTL))
	_, tokenString, err := s.tokenAuth.Encode(map[string]interface{}{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"iat":   jwt.NewNumericDate(now).Unix(),
		"exp":   expires.Unix(),
	})
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// TokenAuth exposes the underlying jwtauth instance for middleware use.
func (s *Service) TokenAuth() *jwtauth.JWTAuth {
	return s.tokenAuth
}

// RoleFromClaims extracts the operator role from verified token claims.
func RoleFromClaims(claims map[string]interface{}) models.UserRole {
	role, _ := claims["role"].(string)
	return models.UserRole(role)
}

// SubjectFromClaims extracts the operator id from verified token claims.
func SubjectFromClaims(claims map[string]interface{}) string {
	sub, _ := claims["sub"].(string)
	return sub
}
