// Package tokenbox encrypts the provider session token at rest.
//
// It uses NaCl box (Curve25519, XSalsa20, Poly1305), byte-compatible with
// libsodium crypto_box_easy. Each Seal generates two fresh key pairs A and B
// and a fresh nonce. The token is boxed from A to B; the record keeps A's
// public key and B's secret key, which derive the same shared key on open.
package tokenbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"

	"github.com/wolfdevsllc/rocketctl/internal/credstore"
	"github.com/wolfdevsllc/rocketctl/internal/output"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Box seals and opens the token stored in a credential store.
type Box struct {
	store credstore.Store
	rand  io.Reader
}

// New creates a Box backed by store.
func New(store credstore.Store) *Box {
	return &Box{store: store, rand: rand.Reader}
}

// WithRand overrides the randomness source. Intended for tests.
func (b *Box) WithRand(r io.Reader) *Box {
	b.rand = r
	return b
}

// Encrypt boxes token under fresh keys without touching the store.
func (b *Box) Encrypt(token string) (*credstore.TokenRecord, error) {
	senderPub, senderPriv, err := box.GenerateKey(b.rand)
	if err != nil {
		return nil, output.ErrCipherFailure("failed to generate sender key pair", err)
	}
	receiverPub, receiverPriv, err := box.GenerateKey(b.rand)
	if err != nil {
		return nil, output.ErrCipherFailure("failed to generate receiver key pair", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.rand, nonce[:]); err != nil {
		return nil, output.ErrCipherFailure("failed to generate nonce", err)
	}

	clamp(receiverPriv)
	ct := box.Seal(nil, []byte(token), &nonce, receiverPub, senderPriv)

	return &credstore.TokenRecord{
		Ciphertext:        credstore.EncodeField(ct),
		SenderPublicKey:   credstore.EncodeField(senderPub[:]),
		ReceiverSecretKey: credstore.EncodeField(receiverPriv[:]),
		Nonce:             credstore.EncodeField(nonce[:]),
	}, nil
}

// Decrypt opens a record produced by Encrypt.
func Decrypt(rec *credstore.TokenRecord) (string, error) {
	if !rec.Complete() {
		return "", output.ErrMissingMaterial()
	}

	ct, err := credstore.DecodeField(rec.Ciphertext)
	if err != nil || len(ct) < box.Overhead {
		return "", output.ErrCipherAuth(fieldError("ciphertext", err))
	}
	senderPub, err := decodeFixed(rec.SenderPublicKey, keySize, "sender public key")
	if err != nil {
		return "", output.ErrCipherAuth(err)
	}
	if senderPub[keySize-1]&0x80 != 0 {
		return "", output.ErrCipherAuth(errors.New("sender public key: high bit set"))
	}
	receiverPriv, err := decodeFixed(rec.ReceiverSecretKey, keySize, "receiver secret key")
	if err != nil {
		return "", output.ErrCipherAuth(err)
	}
	if !clamped(receiverPriv) {
		return "", output.ErrCipherAuth(errors.New("receiver secret key: not clamped"))
	}
	nonceBytes, err := decodeFixed(rec.Nonce, nonceSize, "nonce")
	if err != nil {
		return "", output.ErrCipherAuth(err)
	}

	var pub, priv [keySize]byte
	var nonce [nonceSize]byte
	copy(pub[:], senderPub)
	copy(priv[:], receiverPriv)
	copy(nonce[:], nonceBytes)

	plain, ok := box.Open(nil, ct, &nonce, &pub, &priv)
	if !ok {
		return "", output.ErrCipherAuth(errors.New("message authentication failed"))
	}
	return string(plain), nil
}

// Seal encrypts token and persists the record in a single store write.
func (b *Box) Seal(ctx context.Context, token string) (*credstore.TokenRecord, error) {
	rec, err := b.Encrypt(token)
	if err != nil {
		return nil, err
	}
	if err := b.store.SaveToken(ctx, rec); err != nil {
		return nil, output.ErrCipherFailure("failed to persist token", err)
	}
	return rec, nil
}

// Open loads and decrypts the stored token.
func (b *Box) Open(ctx context.Context) (string, error) {
	rec, err := b.store.LoadToken(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return "", output.ErrMissingMaterial()
	}
	if err != nil {
		return "", output.ErrCipherFailure("failed to load token", err)
	}
	return Decrypt(rec)
}

// Clear removes all token material.
func (b *Box) Clear(ctx context.Context) error {
	if err := b.store.DeleteToken(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// clamp puts a Curve25519 secret key in canonical form. X25519 ignores the
// clamped bits, so only canonical keys make every stored bit significant.
func clamp(k *[keySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

func clamped(k []byte) bool {
	return k[0]&7 == 0 && k[31]&0x80 == 0 && k[31]&0x40 != 0
}

func decodeFixed(s string, size int, field string) ([]byte, error) {
	raw, err := credstore.DecodeField(s)
	if err != nil {
		return nil, fieldError(field, err)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("%s: want %d bytes, got %d", field, size, len(raw))
	}
	return raw, nil
}

func fieldError(field string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: too short", field)
	}
	return fmt.Errorf("%s: %w", field, err)
}
