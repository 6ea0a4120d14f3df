package internal

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// lowercase, no padding, and no 0/2/3/4 so codes survive being read aloud
const formCodeAlphabet = "abcdefghijklmnopqrstuvwxyz156789"

var formCodeEncoding = base32.NewEncoding(formCodeAlphabet).WithPadding(base32.NoPadding)

// FormCode is the 26-character short form of a form id used in export object
// keys and download file names.
func FormCode(id uuid.UUID) string {
	return formCodeEncoding.EncodeToString(id[:])
}

// ParseFormCode reverses FormCode. Input is case-insensitive.
func ParseFormCode(code string) (uuid.UUID, error) {
	data, err := formCodeEncoding.DecodeString(strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid form code %q: %w", code, err)
	}
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid form code %q: %w", code, err)
	}
	return id, nil
}
