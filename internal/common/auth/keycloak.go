// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mission-dispatch/internal/common/errors"
	commonhttp "mission-dispatch/internal/common/http"
	"mission-dispatch/internal/models"

	"github.com/patrickmn/go-cache"
)

// rolePrecedence picks the caller role when a token carries several.
var rolePrecedence = []models.Role{
	models.RoleAdministrator,
	models.RoleOperator,
	models.RoleSubcontractor,
	models.RoleEmployee,
}

// KeycloakClient resolves bearer tokens to caller identities through the
// realm's token introspection endpoint.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *commonhttp.Client
	cache        *cache.Cache
	cacheTTL     time.Duration
	now          func() time.Time
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active      bool   `json:"active"`
	Scope       string `json:"scope,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Exp         int64  `json:"exp,omitempty"` // seconds since epoch
	Sub         string `json:"sub,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string, cacheTTL time.Duration) *KeycloakClient {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   commonhttp.NewClient("keycloak", 10*time.Second),
		cache:        cache.New(cacheTTL, 2*cacheTTL),
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Identify returns the caller behind token. Results are cached for the
// configured TTL, never past the token's own expiry.
func (k *KeycloakClient) Identify(ctx context.Context, token string) (models.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return models.Identity{}, errors.NewUnauthenticatedError("missing bearer token")
	}
	key := cacheKey(token)
	if v, ok := k.cache.Get(key); ok {
		return v.(models.Identity), nil
	}

	info, err := k.ValidateToken(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	if info.Sub == "" {
		return models.Identity{}, errors.NewUnauthenticatedError("token has no subject")
	}
	role, ok := pickRole(info.RealmAccess.Roles)
	if !ok {
		return models.Identity{}, errors.NewUnauthenticatedError("token carries no dispatch role")
	}

	id := models.Identity{UserID: info.Sub, Role: role}
	ttl := k.cacheTTL
	if info.Exp > 0 {
		if remaining := time.Unix(info.Exp, 0).Sub(k.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		k.cache.Set(key, id, ttl)
	}
	return id, nil
}

func pickRole(roles []string) (models.Role, bool) {
	held := make(map[string]bool, len(roles))
	for _, r := range roles {
		held[strings.ToLower(r)] = true
	}
	for _, r := range rolePrecedence {
		if held[string(r)] {
			return r, true
		}
	}
	return "", false
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("create introspection request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(ctx, req)
	if err != nil {
		return nil, errors.NewIdentityProviderError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("introspection status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if isTransientHTTPError(resp.StatusCode) {
			return nil, errors.NewIdentityProviderError(err)
		}
		return nil, errors.NewUnauthenticatedError(err.Error())
	}

	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.NewIdentityProviderError(fmt.Errorf("decode introspection response: %w", err))
	}
	if !info.Active {
		return nil, errors.NewUnauthenticatedError("token is expired, revoked or malformed")
	}
	return &info, nil
}

// isTransientHTTPError returns true if the HTTP status code indicates a potentially transient error.
func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
