package openpayments

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signer adds HTTP message signatures (RFC 9421) with an Ed25519 client key.
type Signer struct {
	keyID string
	key   ed25519.PrivateKey
	now   func() time.Time
}

// NewSigner parses PRIVATE_KEY_BASE64: either a base64-encoded PEM PKCS#8
// block, or a raw base64 Ed25519 seed or private key.
func NewSigner(keyID, privateKeyBase64 string) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("openpayments: key id is required")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privateKeyBase64))
	if err != nil {
		return nil, fmt.Errorf("openpayments: decode private key: %w", err)
	}
	key, err := parseEd25519(raw)
	if err != nil {
		return nil, err
	}
	return &Signer{keyID: keyID, key: key, now: time.Now}, nil
}

func parseEd25519(raw []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		switch len(raw) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(raw), nil
		case ed25519.PrivateKeySize:
			return ed25519.PrivateKey(raw), nil
		}
	} else {
		raw = block.Bytes
	}
	parsed, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("openpayments: parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("openpayments: private key is %T, want ed25519", parsed)
	}
	return key, nil
}

// Sign sets Content-Digest, Signature-Input and Signature on req. The body
// is read and restored.
func (s *Signer) Sign(req *http.Request) error {
	components := []string{`"@method"`, `"@target-uri"`}
	values := []string{req.Method, req.URL.String()}

	if req.Header.Get("Authorization") != "" {
		components = append(components, `"authorization"`)
		values = append(values, req.Header.Get("Authorization"))
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha512.Sum512(body)
		req.Header.Set("Content-Digest", "sha-512=:"+base64.StdEncoding.EncodeToString(sum[:])+":")
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
		components = append(components, `"content-digest"`, `"content-length"`, `"content-type"`)
		values = append(values, req.Header.Get("Content-Digest"), req.Header.Get("Content-Length"), req.Header.Get("Content-Type"))
	}

	params := fmt.Sprintf("(%s);keyid=%q;created=%d", strings.Join(components, " "), s.keyID, s.now().Unix())

	var base strings.Builder
	for i, c := range components {
		base.WriteString(c)
		base.WriteString(": ")
		base.WriteString(values[i])
		base.WriteString("\n")
	}
	base.WriteString(`"@signature-params": `)
	base.WriteString(params)

	sig := ed25519.Sign(s.key, []byte(base.String()))
	req.Header.Set("Signature-Input", "sig1="+params)
	req.Header.Set("Signature", "sig1=:"+base64.StdEncoding.EncodeToString(sig)+":")
	return nil
}

// PublicKey exposes the verification key, used by tests and key publishing.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
