// Package webhook authenticates inbound provider webhooks.
package webhook

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/scan-dispatch/internal/core"
)

// SignatureHeader carries the HMAC-SHA256 signature of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// VerifySignature checks that header is "sha256=" followed by the hex encoded
// HMAC-SHA256 of body keyed with secret. body must be the bytes exactly as
// received. The comparison is constant time.
func VerifySignature(body []byte, header, secret string) error {
	if header == "" {
		return core.ErrUnauthenticated
	}
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return core.ErrInvalidSignature
	}
	if err := github.ValidateSignature(header, body, []byte(secret)); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidSignature, err)
	}
	return nil
}
