package webhook

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // used to build a legacy header in tests
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/scan-dispatch/internal/core"
)

const testSecret = "s3cr3t"

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"opened","number":7}`)

	legacy := hmac.New(sha1.New, []byte(testSecret))
	legacy.Write(body)

	tests := []struct {
		name    string
		header  string
		secret  string
		wantErr error
	}{
		{name: "valid", header: sign(body, testSecret), secret: testSecret},
		{name: "missing header", header: "", secret: testSecret, wantErr: core.ErrUnauthenticated},
		{name: "wrong secret", header: sign(body, "other"), secret: testSecret, wantErr: core.ErrInvalidSignature},
		{name: "no prefix", header: sign(body, testSecret)[len(signaturePrefix):], secret: testSecret, wantErr: core.ErrInvalidSignature},
		{name: "sha1 header", header: "sha1=" + hex.EncodeToString(legacy.Sum(nil)), secret: testSecret, wantErr: core.ErrInvalidSignature},
		{name: "bad hex", header: "sha256=zz", secret: testSecret, wantErr: core.ErrInvalidSignature},
		{name: "empty secret", header: sign(body, ""), secret: "", wantErr: core.ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(body, tt.header, tt.secret)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifySignature_SingleByteMutation(t *testing.T) {
	body := []byte(`{"action":"synchronize","pull_request":{"head":{"sha":"abc"}}}`)
	header := sign(body, testSecret)
	require.NoError(t, VerifySignature(body, header, testSecret))

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.ErrorIs(t, VerifySignature(mutated, header, testSecret), core.ErrInvalidSignature, "byte %d", i)
	}
}

func TestVerifySignature_ReencodedBodyRejected(t *testing.T) {
	raw := []byte("{\n  \"action\": \"opened\"\n}")
	header := sign(raw, testSecret)

	// same JSON value, different bytes
	assert.ErrorIs(t, VerifySignature([]byte(`{"action":"opened"}`), header, testSecret), core.ErrInvalidSignature)
}
