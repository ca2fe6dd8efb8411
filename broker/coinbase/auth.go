package coinbase

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenTTL is the lifetime Coinbase accepts for a request JWT.
const tokenTTL = 2 * time.Minute

// signer mints one ES256 JWT per request from a CDP API key.
type signer struct {
	keyName string
	key     *ecdsa.PrivateKey
	now     func() time.Time
}

// newSigner parses the PEM encoded EC private key. Keys copied from JSON
// often carry literal "\n" sequences, which are restored to newlines.
func newSigner(keyName, privateKeyPEM string) (*signer, error) {
	if keyName == "" {
		return nil, fmt.Errorf("coinbase: api key name is required")
	}
	pem := strings.ReplaceAll(strings.TrimSpace(privateKeyPEM), `\n`, "\n")
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse api secret: %w", err)
	}
	return &signer{keyName: keyName, key: key, now: time.Now}, nil
}

// token returns a bearer token bound to one method, host and path.
func (s *signer) token(method, host, path string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": s.keyName,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
		"uri": fmt.Sprintf("%s %s%s", method, host, path),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = s.keyName
	tok.Header["nonce"] = strings.ReplaceAll(uuid.NewString(), "-", "")

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("coinbase: sign request: %w", err)
	}
	return signed, nil
}
