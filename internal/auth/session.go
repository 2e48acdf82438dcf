package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"dispatch-realtime/internal/models"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AdminClaims are the claims the dispatch backend puts in admin tokens.
type AdminClaims struct {
	jwt.RegisteredClaims
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// Verifier resolves the session identity carried by a bearer token. With an
// issuer configured the signature is checked against the issuer's JWKS;
// without one the claims are only decoded, since the backend stays the
// authority for every call made with the token.
type Verifier struct {
	issuer     string
	httpClient *http.Client
	logger     *zap.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func NewVerifier(issuerURL string, logger *zap.Logger) *Verifier {
	return &Verifier{
		issuer:     strings.TrimSuffix(issuerURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(zap.String("component", "auth")),
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Init loads the JWKS and refreshes it every 24 hours until ctx is done.
// It is a no-op when no issuer is configured.
func (v *Verifier) Init(ctx context.Context) error {
	if v.issuer == "" {
		return nil
	}
	if err := v.refresh(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := v.refresh(ctx); err != nil {
					v.logger.Error("[AUTH] Error refreshing JWKS", zap.Error(err))
				} else {
					v.logger.Info("[AUTH] JWKS refreshed")
				}
			}
		}
	}()
	return nil
}

func (v *Verifier) refresh(ctx context.Context) error {
	jwksURL := v.issuer + "/.well-known/jwks.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := jwkToPublicKey(k)
		if err != nil {
			v.logger.Warn("[AUTH] Skipping unusable JWK", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.mu.Unlock()

	v.logger.Info("[AUTH] JWKS loaded", zap.String("url", jwksURL), zap.Int("keys", len(keys)))
	return nil
}

// Identity returns the admin identity of token. A token without an id claim
// yields an identity with an empty ID rather than an error.
func (v *Verifier) Identity(token string) (models.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return models.Identity{}, errors.New("token is empty")
	}

	claims := &AdminClaims{}
	if v.issuer == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return models.Identity{}, fmt.Errorf("failed to decode token: %w", err)
		}
	} else {
		parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
			jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
		if err != nil {
			return models.Identity{}, fmt.Errorf("failed to parse token: %w", err)
		}
		if !parsed.Valid {
			return models.Identity{}, errors.New("invalid token claims")
		}
	}

	if claims.Role != "" && claims.Role != models.RoleAdmin {
		return models.Identity{}, fmt.Errorf("token role %q is not %q", claims.Role, models.RoleAdmin)
	}

	id := claims.ID
	if id == "" {
		id = claims.Subject
	}
	return models.Identity{Role: models.RoleAdmin, ID: id}, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("kid not found in token header")
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
}

func jwkToPublicKey(k JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
