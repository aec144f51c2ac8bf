// Package asset manages protected records of every resource class behind a
// single parameterized service. Confidential content is sealed through the
// vault engine; image and document content is stored as-is with a checksum.
package asset

import (
	"errors"
	"strings"
	"time"

	"custodia.org/internal/rbac"
)

var (
	ErrInvalidInput = errors.New("asset: invalid input")
	ErrForbidden    = errors.New("asset: permission denied")
	ErrNotFound     = errors.New("asset: not found")
	ErrDependency   = errors.New("asset: dependency failure")
)

// Record is the stored metadata for one asset. Content bytes live in blob
// storage under the record id; for confidential records the blob holds
// ciphertext and Nonce/Tag/KeyVersion hold the rest of the envelope.
type Record struct {
	ID          string        `json:"id"`
	Kind        rbac.Resource `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	MimeType    string        `json:"mime_type"`
	Checksum    string        `json:"checksum"`

	Nonce      []byte `json:"-"`
	Tag        []byte `json:"-"`
	KeyVersion string `json:"key_version,omitempty"`

	CreatedBy string     `json:"created_by"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record has been soft-deleted.
func (r *Record) Deleted() bool { return r.DeletedAt != nil }

// Confidential reports whether the record's content is sealed.
func (r *Record) Confidential() bool { return r.Kind == rbac.ResourceConfidential }

// Actor identifies the principal performing an operation and the role whose
// permissions gate it.
type Actor struct {
	PrincipalID string
	RoleID      string
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.PrincipalID) == "" || strings.TrimSpace(a.RoleID) == "" {
		return ErrForbidden
	}
	return nil
}
