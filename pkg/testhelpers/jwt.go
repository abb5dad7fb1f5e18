// Package testhelpers provides utilities for testing ekaya-tracker components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT creates a test JWT for use when verification is disabled.
// The token has a valid structure but no signature (alg: none) and is
// addressed to the "tracker" audience.
func GenerateTestJWT(sub, email string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub, "aud": []string{"tracker"}}
	if email != "" {
		claims["email"] = email
	}
	payload, _ := json.Marshal(claims)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, email string) string {
	return "Bearer " + GenerateTestJWT(sub, email)
}
