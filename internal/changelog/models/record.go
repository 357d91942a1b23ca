package models

import (
	"encoding/json"
	"fmt"
)

// Mode selects the wire format ZMS uses to deliver domains.
type Mode string

const (
	// ModeSigned is the legacy format: DomainData plus a detached signature
	// over its canonical serialization.
	ModeSigned Mode = "signed"
	// ModeJWS is the JWS flattened serialization with a base64url payload.
	ModeJWS Mode = "jws"
)

func (m Mode) IsValid() bool {
	return m == ModeSigned || m == ModeJWS
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a configuration value into a Mode.
func ParseMode(value string) (Mode, error) {
	m := Mode(value)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown sync mode %q", value)
	}
	return m, nil
}

// Record is one domain as received from ZMS. It is implemented only by
// *SignedDomain and *JWSDomain.
type Record interface {
	Mode() Mode
	isRecord()
}

// SignedDomain is the legacy signed-domain encoding.
type SignedDomain struct {
	Domain    DomainData `json:"domain"`
	Signature string     `json:"signature"`
	KeyID     string     `json:"keyId"`
}

func (*SignedDomain) Mode() Mode { return ModeSigned }
func (*SignedDomain) isRecord()  {}

// JWSDomain is the JWS-domain encoding. Protected, Payload and Signature are
// base64url encoded; Header holds the unprotected header ZMS attaches.
type JWSDomain struct {
	Payload   string            `json:"payload"`
	Protected string            `json:"protected"`
	Header    map[string]string `json:"header,omitempty"`
	Signature string            `json:"signature"`
}

func (*JWSDomain) Mode() Mode { return ModeJWS }
func (*JWSDomain) isRecord()  {}

// Changes is the result of one incremental fetch: the records changed since
// the requested watermark and the high-water mark ZMS reported for the batch.
type Changes struct {
	Records   []Record
	Watermark string
}

// Envelope is the persisted, self-describing form of a Record.
type Envelope struct {
	Mode   Mode          `json:"mode"`
	Signed *SignedDomain `json:"signed,omitempty"`
	JWS    *JWSDomain    `json:"jws,omitempty"`
}

// Wrap builds the envelope for a record.
func Wrap(r Record) (Envelope, error) {
	switch rec := r.(type) {
	case *SignedDomain:
		if rec == nil {
			return Envelope{}, fmt.Errorf("nil signed domain")
		}
		return Envelope{Mode: ModeSigned, Signed: rec}, nil
	case *JWSDomain:
		if rec == nil {
			return Envelope{}, fmt.Errorf("nil jws domain")
		}
		return Envelope{Mode: ModeJWS, JWS: rec}, nil
	default:
		return Envelope{}, fmt.Errorf("unsupported record type %T", r)
	}
}

// Record unwraps the envelope, checking that the tag matches the content.
func (e Envelope) Record() (Record, error) {
	switch e.Mode {
	case ModeSigned:
		if e.Signed == nil {
			return nil, fmt.Errorf("signed envelope without domain")
		}
		return e.Signed, nil
	case ModeJWS:
		if e.JWS == nil {
			return nil, fmt.Errorf("jws envelope without domain")
		}
		return e.JWS, nil
	default:
		return nil, fmt.Errorf("unknown envelope mode %q", e.Mode)
	}
}

// MarshalRecord encodes a record as an envelope document.
func MarshalRecord(r Record) ([]byte, error) {
	env, err := Wrap(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalRecord decodes an envelope document produced by MarshalRecord.
func UnmarshalRecord(b []byte) (Record, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode record envelope: %w", err)
	}
	return env.Record()
}
