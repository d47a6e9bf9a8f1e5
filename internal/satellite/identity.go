package satellite

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrEmptyName = errors.New("satellite: empty site name")

const idLength = 8

// DeriveID maps a sender name to its site id: the first 8 hex digits of md5(name).
// Names that are empty or only whitespace are rejected.
func DeriveID(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:idLength], nil
}
