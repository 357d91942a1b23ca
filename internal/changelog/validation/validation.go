// Package validation verifies that domain records really come from ZMS.
//
// Both wire formats are supported: the legacy signed domain, whose detached
// ybase64 signature covers the canonical serialization of the domain data,
// and the JWS domain, whose signature covers "<protected>.<payload>".
// Verification never mutates anything; failures are reported through the
// boolean Validate* methods or, for diagnostics, the error-returning Verify*
// methods.
package validation

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"hash"

	"github.com/golang-jwt/jwt/v5"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/ybase64"
)

var (
	ErrMalformed            = errors.New("malformed record")
	ErrUnknownKey           = errors.New("unresolvable key id")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrBadSignature         = errors.New("signature verification failed")
	ErrPayload              = errors.New("undecodable domain payload")
)

// Asymmetric algorithms only. HMAC and "none" are never accepted since the
// verification material is a public key.
var jwsMethods = map[string]jwt.SigningMethod{
	jwt.SigningMethodRS256.Alg(): jwt.SigningMethodRS256,
	jwt.SigningMethodRS384.Alg(): jwt.SigningMethodRS384,
	jwt.SigningMethodRS512.Alg(): jwt.SigningMethodRS512,
	jwt.SigningMethodPS256.Alg(): jwt.SigningMethodPS256,
	jwt.SigningMethodPS384.Alg(): jwt.SigningMethodPS384,
	jwt.SigningMethodPS512.Alg(): jwt.SigningMethodPS512,
	jwt.SigningMethodES256.Alg(): jwt.SigningMethodES256,
	jwt.SigningMethodES384.Alg(): jwt.SigningMethodES384,
	jwt.SigningMethodES512.Alg(): jwt.SigningMethodES512,
	jwt.SigningMethodEdDSA.Alg(): jwt.SigningMethodEdDSA,
}

type jwsHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// segments decodes base64url JWS segments, tolerating padding.
var segments = jwt.NewParser(jwt.WithPaddingAllowed())

// Validator is the default ports.Validator backed by a KeyProvider.
type Validator struct {
	keys ports.KeyProvider
}

var _ ports.Validator = (*Validator)(nil)

func New(keys ports.KeyProvider) (*Validator, error) {
	if keys == nil {
		return nil, fmt.Errorf("key provider is required")
	}
	return &Validator{keys: keys}, nil
}

func (v *Validator) ValidateSigned(domain *models.SignedDomain) bool {
	return v.VerifySigned(domain) == nil
}

func (v *Validator) ValidateJWS(domain *models.JWSDomain) bool {
	return v.VerifyJWS(domain) == nil
}

// VerifySigned checks the detached signature of a legacy signed domain.
func (v *Validator) VerifySigned(domain *models.SignedDomain) error {
	if domain == nil {
		return fmt.Errorf("%w: nil signed domain", ErrMalformed)
	}
	if domain.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	if domain.KeyID == "" {
		return fmt.Errorf("%w: missing key id", ErrUnknownKey)
	}

	key, err := v.keys.PublicKey(domain.KeyID)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrUnknownKey, domain.KeyID, err)
	}

	canonical, err := Canonical(&domain.Domain)
	if err != nil {
		return fmt.Errorf("%w: canonicalize domain: %v", ErrMalformed, err)
	}

	sig, err := ybase64.Decode(domain.Signature)
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrMalformed, err)
	}

	return verifyDetached(key, canonical, sig)
}

// VerifyJWS checks a JWS domain against the key named in its protected header.
func (v *Validator) VerifyJWS(domain *models.JWSDomain) error {
	if domain == nil {
		return fmt.Errorf("%w: nil jws domain", ErrMalformed)
	}
	if domain.Protected == "" || domain.Payload == "" || domain.Signature == "" {
		return fmt.Errorf("%w: incomplete jws domain", ErrMalformed)
	}

	headerBytes, err := segments.DecodeSegment(domain.Protected)
	if err != nil {
		return fmt.Errorf("%w: decode protected header: %v", ErrMalformed, err)
	}
	var header jwsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return fmt.Errorf("%w: parse protected header: %v", ErrMalformed, err)
	}
	if header.Alg == "" {
		return fmt.Errorf("%w: protected header has no alg", ErrMalformed)
	}

	method, ok := jwsMethods[header.Alg]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, header.Alg)
	}
	if header.Kid == "" {
		return fmt.Errorf("%w: protected header has no kid", ErrUnknownKey)
	}

	key, err := v.keys.PublicKey(header.Kid)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrUnknownKey, header.Kid, err)
	}

	sig, err := segments.DecodeSegment(domain.Signature)
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrMalformed, err)
	}

	signingInput := domain.Protected + "." + domain.Payload
	verifyErr := method.Verify(signingInput, sig, key)
	if verifyErr == nil {
		return nil
	}

	// Some ZMS releases emit DER encoded ECDSA signatures inside JWS.
	if ecKey, ok := key.(*ecdsa.PublicKey); ok {
		if h := ecdsaHash(header.Alg); h != nil && verifyECDSADER(ecKey, h, []byte(signingInput), sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrBadSignature, verifyErr)
}

// ExtractDomainData returns the domain data carried by a record. An error
// means the record is unusable even if its signature verified.
func ExtractDomainData(record models.Record) (*models.DomainData, error) {
	switch rec := record.(type) {
	case *models.SignedDomain:
		if rec == nil {
			return nil, fmt.Errorf("%w: nil signed domain", ErrPayload)
		}
		data := rec.Domain
		if data.Name == "" {
			return nil, fmt.Errorf("%w: domain has no name", ErrPayload)
		}
		return &data, nil
	case *models.JWSDomain:
		if rec == nil {
			return nil, fmt.Errorf("%w: nil jws domain", ErrPayload)
		}
		payload, err := segments.DecodeSegment(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		data, err := models.DecodeDomainData(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		if data.Name == "" {
			return nil, fmt.Errorf("%w: domain has no name", ErrPayload)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported record type %T", ErrPayload, record)
	}
}

// Validate dispatches a record to the scheme-specific check of v.
func Validate(v ports.Validator, record models.Record) bool {
	switch rec := record.(type) {
	case *models.SignedDomain:
		return v.ValidateSigned(rec)
	case *models.JWSDomain:
		return v.ValidateJWS(rec)
	default:
		return false
	}
}

func verifyDetached(key crypto.PublicKey, data, sig []byte) error {
	switch k := key.(type) {
	case *rsa.PublicKey:
		if err := jwt.SigningMethodRS256.Verify(string(data), sig, k); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return nil
	case *ecdsa.PublicKey:
		if !verifyECDSADER(k, sha256.New, data, sig) {
			return ErrBadSignature
		}
		return nil
	case ed25519.PublicKey:
		if err := jwt.SigningMethodEdDSA.Verify(string(data), sig, k); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, key)
	}
}

func verifyECDSADER(key *ecdsa.PublicKey, newHash func() hash.Hash, data, sig []byte) bool {
	h := newHash()
	h.Write(data)
	return ecdsa.VerifyASN1(key, h.Sum(nil), sig)
}

func ecdsaHash(alg string) func() hash.Hash {
	switch alg {
	case jwt.SigningMethodES256.Alg():
		return sha256.New
	case jwt.SigningMethodES384.Alg():
		return sha512.New384
	case jwt.SigningMethodES512.Alg():
		return sha512.New
	default:
		return nil
	}
}
