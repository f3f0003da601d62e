package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

type nonceKey struct{}

// newNonce returns 16 random bytes, base64url-encoded without padding.
func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate CSP nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func withNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceKey{}, nonce)
}

// nonceFrom returns the nonce the security middleware put on ctx, or "".
func nonceFrom(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceKey{}).(string)
	return nonce
}
