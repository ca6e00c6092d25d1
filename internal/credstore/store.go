// Package credstore persists provider credentials and encrypted token material.
//
// Every mutation replaces or deletes a whole record, so a reader never sees a
// token record with fields from two different writes.
package credstore

import (
	"context"
	"encoding/base64"
	"errors"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("credstore: record not found")

// Credential is the operator-supplied provider login.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Complete reports whether both fields are set.
func (c *Credential) Complete() bool {
	return c != nil && c.Email != "" && c.Password != ""
}

// TokenRecord is the encrypted session token plus the material needed to open it.
// All fields are standard base64.
type TokenRecord struct {
	Ciphertext        string `json:"ciphertext"`
	SenderPublicKey   string `json:"sender_public_key"`
	ReceiverSecretKey string `json:"receiver_secret_key"`
	Nonce             string `json:"nonce"`
}

// Complete reports whether every field is non-empty.
func (r *TokenRecord) Complete() bool {
	return r != nil && r.Ciphertext != "" && r.SenderPublicKey != "" &&
		r.ReceiverSecretKey != "" && r.Nonce != ""
}

// Store is a credential store backend.
type Store interface {
	// LoadToken returns ErrNotFound when no record is stored.
	LoadToken(ctx context.Context) (*TokenRecord, error)
	// SaveToken replaces the whole record.
	SaveToken(ctx context.Context, rec *TokenRecord) error
	// DeleteToken removes the whole record. Deleting a missing record is not an error.
	DeleteToken(ctx context.Context) error

	LoadCredential(ctx context.Context) (*Credential, error)
	SaveCredential(ctx context.Context, cred *Credential) error
	DeleteCredential(ctx context.Context) error

	// Name identifies the backend ("keyring", "file", ...).
	Name() string
	Close() error
}

// Locker is implemented by backends whose state lives on the local
// filesystem, so token refresh can also be serialized across processes.
type Locker interface {
	LockPath() string
}

// b64 is the encoding used for every TokenRecord field. Strict decoding
// rejects non-zero padding bits.
var b64 = base64.StdEncoding.Strict()

// EncodeField encodes raw bytes for a TokenRecord field.
func EncodeField(b []byte) string { return b64.EncodeToString(b) }

// DecodeField decodes a TokenRecord field.
func DecodeField(s string) ([]byte, error) { return b64.DecodeString(s) }

func copyToken(r *TokenRecord) *TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func copyCredential(c *Credential) *Credential {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}
