package models

import "encoding/json"

// DomainData is the policy payload ZMS publishes for a single domain.
//
// Only the fields needed for identity and enablement are typed; role, policy,
// service and entity content is carried as raw JSON. The exact bytes that were
// decoded are retained so a legacy signature can be checked against everything
// ZMS signed, including fields this module does not know about. A DomainData
// is treated as immutable once decoded.
type DomainData struct {
	Name         string            `json:"name"`
	Enabled      *bool             `json:"enabled,omitempty"`
	Modified     string            `json:"modified,omitempty"`
	Account      string            `json:"account,omitempty"`
	YpmID        *int32            `json:"ypmId,omitempty"`
	AuditEnabled *bool             `json:"auditEnabled,omitempty"`
	Roles        []json.RawMessage `json:"roles,omitempty"`
	Policies     json.RawMessage   `json:"policies,omitempty"`
	Services     []json.RawMessage `json:"services,omitempty"`
	Entities     []json.RawMessage `json:"entities,omitempty"`

	raw json.RawMessage
}

type domainDataFields DomainData

// UnmarshalJSON decodes the known fields, ignores unknown ones and keeps the
// original document.
func (d *DomainData) UnmarshalJSON(b []byte) error {
	var fields domainDataFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*d = DomainData(fields)
	d.raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON returns the original document when the value was decoded, so a
// stored record round-trips byte for byte.
func (d DomainData) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	return json.Marshal(domainDataFields(d))
}

// Raw returns the document the value was decoded from, or nil when it was
// built in code.
func (d *DomainData) Raw() json.RawMessage {
	return d.raw
}

// IsEnabled treats an unset flag as enabled.
func (d *DomainData) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// IsDisabled reports whether the domain is explicitly disabled.
func (d *DomainData) IsDisabled() bool {
	return d.Enabled != nil && !*d.Enabled
}

// DecodeDomainData parses a DomainData JSON document.
func DecodeDomainData(b []byte) (*DomainData, error) {
	var d DomainData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
