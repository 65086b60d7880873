package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidRoutingToken indicates a routing token that failed to decode or verify.
// Callers must fail closed on it: no store writes, no partial processing.
var ErrInvalidRoutingToken = errors.New("invalid routing token")

const (
	routingClaimTenant     = "tid"
	routingClaimCredential = "cid"
	routingClaimType       = "typ"
	routingTokenType       = "webhook_route"
)

// RoutingCodec encodes and decodes the opaque identifier embedded in public
// webhook URLs. Tokens are HMAC-signed so a caller of the shared endpoint
// cannot forge another tenant's route. Tokens carry no expiry: provider
// webhook registrations are long-lived.
type RoutingCodec struct {
	secret []byte
}

// NewRoutingCodec creates a codec signing with the given secret.
func NewRoutingCodec(secret string) (*RoutingCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("routing secret is required")
	}
	return &RoutingCodec{secret: []byte(secret)}, nil
}

// Encode builds a signed routing token for (tenantID, credentialID).
func (c *RoutingCodec) Encode(tenantID, credentialID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	credentialID = strings.TrimSpace(credentialID)
	if tenantID == "" || credentialID == "" {
		return "", fmt.Errorf("tenant id and credential id are required")
	}
	claims := jwt.MapClaims{
		routingClaimType:       routingTokenType,
		routingClaimTenant:     tenantID,
		routingClaimCredential: credentialID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign routing token: %w", err)
	}
	return signed, nil
}

// Decode verifies a routing token and returns (tenantID, credentialID).
// Any parse, signature, or shape error yields ErrInvalidRoutingToken.
func (c *RoutingCodec) Decode(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrInvalidRoutingToken
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidRoutingToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidRoutingToken
	}
	if claimString(claims, routingClaimType) != routingTokenType {
		return "", "", ErrInvalidRoutingToken
	}
	tenantID := claimString(claims, routingClaimTenant)
	credentialID := claimString(claims, routingClaimCredential)
	if tenantID == "" || credentialID == "" {
		return "", "", ErrInvalidRoutingToken
	}
	return tenantID, credentialID, nil
}
