package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifyGitHubSignature checks the X-Hub-Signature-256 header against the
// raw request body. An empty secret disables verification.
func VerifyGitHubSignature(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return fmt.Errorf("malformed signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
