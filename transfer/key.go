package transfer

import (
	"crypto/md5" //nolint:gosec // the SSE-C protocol mandates an MD5 integrity digest of the key
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/xraph/jobgraph"
)

// KeySize is the length of master and derived keys in bytes.
const KeySize = 32

// Header names of the SSE-C protocol.
const (
	HeaderAlgorithm = "x-amz-server-side-encryption-customer-algorithm"
	HeaderKey       = "x-amz-server-side-encryption-customer-key"
	HeaderKeyMD5    = "x-amz-server-side-encryption-customer-key-md5"

	// Algorithm is the only supported customer algorithm.
	Algorithm = "AES256"
)

var errKeySize = errors.New("transfer: key must be exactly 32 bytes")

// LoadMasterKey reads a master key file whose entire contents must be
// exactly KeySize bytes.
func LoadMasterKey(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &jobgraph.ConfigError{Field: "master_key", Err: err}
	}
	if len(b) != KeySize {
		return nil, &jobgraph.ConfigError{
			Field: "master_key",
			Err:   fmt.Errorf("%w: %s has %d bytes", errKeySize, path, len(b)),
		}
	}
	return b, nil
}

// DeriveKey returns sha256(masterKey || url). The master key must be
// exactly KeySize bytes.
func DeriveKey(masterKey []byte, url string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, &jobgraph.ConfigError{
			Field: "master_key",
			Err:   fmt.Errorf("%w: got %d", errKeySize, len(masterKey)),
		}
	}
	h := sha256.New()
	h.Write(masterKey)
	h.Write([]byte(url))
	return h.Sum(nil), nil
}

// Headers returns the three SSE-C request headers, in protocol order, as
// "name:value" strings ready for curl -H.
func Headers(key []byte) []string {
	sum := md5.Sum(key) //nolint:gosec // protocol requirement
	return []string{
		HeaderAlgorithm + ":" + Algorithm,
		HeaderKey + ":" + base64.StdEncoding.EncodeToString(key),
		HeaderKeyMD5 + ":" + base64.StdEncoding.EncodeToString(sum[:]),
	}
}
