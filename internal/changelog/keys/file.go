package keys

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"policysync/pkg/ybase64"
)

// File is the on-disk description of the trusted ZMS keys.
//
//	keys:
//	  - id: "0"
//	    path: zms_public_0.pem        # relative to the key file
//	  - id: "1"
//	    pem: |
//	      -----BEGIN PUBLIC KEY-----
//	      ...
//	  - id: "2"
//	    y64: LS0tLS1CRUdJTi...        # athenz.conf style
type File struct {
	Keys []FileKey `yaml:"keys"`
}

type FileKey struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path,omitempty"`
	PEM  string `yaml:"pem,omitempty"`
	Y64  string `yaml:"y64,omitempty"`
}

// LoadFile reads a key file and parses every key in it.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if len(f.Keys) == 0 {
		return nil, fmt.Errorf("key file %s lists no keys", path)
	}

	store := NewStatic(nil)
	dir := filepath.Dir(path)
	for i, k := range f.Keys {
		if k.ID == "" {
			return nil, fmt.Errorf("key #%d: id is required", i)
		}
		pemBytes, err := k.material(dir)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.ID, err)
		}
		pub, err := ParsePublicKeyPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.ID, err)
		}
		store.Set(k.ID, pub)
	}
	return store, nil
}

func (k FileKey) material(dir string) ([]byte, error) {
	switch {
	case k.PEM != "":
		return []byte(k.PEM), nil
	case k.Y64 != "":
		return ybase64.Decode(k.Y64)
	case k.Path != "":
		p := k.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return os.ReadFile(p)
	default:
		return nil, fmt.Errorf("one of pem, y64 or path is required")
	}
}
