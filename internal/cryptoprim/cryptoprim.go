// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package cryptoprim implements the keyed MAC and authenticated cipher
// primitives used by the blob store. Every function here is pure: no I/O, no
// persistent state, no interpretation of frame layout.
package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
)

// MACSize is the length in bytes of an HMAC-SHA-256 output.
const MACSize = sha256.Size

// NonceSize is the length in bytes of an AES-GCM nonce (IV).
const NonceSize = 12

// TagSize is the length in bytes of an AES-GCM authentication tag.
const TagSize = 16

// ErrAuthFailed is returned by SealOpen when the GCM tag does not verify.
var ErrAuthFailed = fmt.Errorf("cryptoprim: authentication failed")

// HMACSHA256 returns the HMAC-SHA-256 of msg under key.
func HMACSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(msg)
	return mac.Sum(nil)
}

// ConstantTimeEqual reports whether a and b hold the same bytes, in time
// independent of where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Random returns n cryptographically strong random bytes.
func Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("cryptoprim: reading random bytes: %w", err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: %w", err)
	}
	return aead, nil
}

// SealEncrypt encrypts plaintext under key using AES-GCM with the given
// 12-byte nonce. The returned ciphertext and tag are always the same length
// as plaintext and TagSize respectively.
func SealEncrypt(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	if len(nonce) != NonceSize {
		return nil, nil, fmt.Errorf("cryptoprim: nonce must be %d bytes", NonceSize)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-TagSize]
	return ct, sealed[len(ct):], nil
}

// SealOpen decrypts ciphertext under key using AES-GCM with the given nonce
// and tag, returning ErrAuthFailed on any tag mismatch and no plaintext.
func SealOpen(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("cryptoprim: nonce must be %d bytes", NonceSize)
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("cryptoprim: tag must be %d bytes", TagSize)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
