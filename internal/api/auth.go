package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the session token payload minted after a successful login.
type TokenClaims struct {
	AccountID string `json:"account"`
	Tier      string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies session tokens with an HMAC secret shared
// across host instances.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// CreateToken mints a session token for an account.
func (m *TokenManager) CreateToken(accountID, tier string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		AccountID: accountID,
		Tier:      tier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "agent-overlay-host",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyToken parses and validates a session token.
func (m *TokenManager) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// sessionTokenTTL is how long a minted session token stays valid.
const sessionTokenTTL = 24 * time.Hour

// AuthProvider verifies credentials with the external auth service. The
// concrete implementation calls the provider's HTTP API; tests substitute
// fakes.
type AuthProvider interface {
	Login(ctx context.Context, email, password string) (accountID, tier string, err error)
}

type httpAuthProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAuthProvider talks to the configured auth provider over HTTP.
func NewHTTPAuthProvider(baseURL string) AuthProvider {
	return &httpAuthProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *httpAuthProvider) Login(ctx context.Context, email, password string) (string, string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("auth provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", "", errInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("auth provider returned %d", resp.StatusCode)
	}

	var result struct {
		AccountID string `json:"account_id"`
		Tier      string `json:"tier"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("decode auth provider response: %w", err)
	}
	if result.AccountID == "" {
		return "", "", fmt.Errorf("auth provider response missing account_id")
	}
	return result.AccountID, result.Tier, nil
}

var errInvalidCredentials = fmt.Errorf("invalid credentials")

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin proxies credentials to the auth provider and mints a session
// token carrying the account's subscription tier.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	accountID, tier, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if err == errInvalidCredentials {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "auth provider error"})
		return
	}

	token, err := s.tokens.CreateToken(accountID, tier, sessionTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"account_id": accountID,
		"tier":       tier,
	})
}
