// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package secretstore defines the Platform Secret Store interface consumed
// by the blob store and nonce manager, along with a zeroize-on-release key
// container and two reference implementations: a file-backed stub (File) and
// a SQLite-backed store (SQLite).
//
// A production device would instead bind this interface to a secure element
// or OS keyring; this package only provides what the teacher's own
// [blob.DeviceCredential] and [tpm.DeviceCredential] provide for device
// secrets — interchangeable backends behind one interface.
package secretstore

import "fmt"

// NonceSize is the length in bytes of a single nonce value stored in a Slot.
const NonceSize = 12

// Secret is a fixed-length key held in memory for the duration of one scoped
// acquisition. Callers must call Release as soon as the key is no longer
// needed, typically via defer immediately after acquisition.
type Secret struct {
	b []byte
}

// NewSecret copies b into a new Secret. The caller retains ownership of b.
func NewSecret(b []byte) Secret {
	s := Secret{b: make([]byte, len(b))}
	copy(s.b, b)
	return s
}

// Bytes returns the key material. The returned slice aliases the Secret's
// internal storage and must not be retained past Release.
func (s Secret) Bytes() []byte { return s.b }

// Release overwrites the key material with zeros. It is safe to call more
// than once and on a zero-value Secret.
func (s Secret) Release() {
	for i := range s.b {
		s.b[i] = 0
	}
}

// Slot is the persistent nonce-slot record: a base value fixed on first use
// and a monotonically advancing counter, plus the permanent exhaustion latch
// described in spec §4.2.
type Slot struct {
	Base      [NonceSize]byte
	Counter   [NonceSize]byte
	Exhausted bool

	// Initialized is false only when the slot has never been written; the
	// caller (internal/noncemgr) uses this to distinguish "no slot yet" from
	// "slot read back with the zero value," which is itself a valid nonce.
	Initialized bool
}

// Store is the Platform Secret Store interface: opaque provider of the
// device-bound sealing key, the HMAC key used by Authenticated mode, and the
// persistent nonce slot. Implementations must make SealingKey and MACKey
// available for exclusive, serialized acquisition, and must make
// ReadNonceSlot/WriteNonceSlot durable and immediately consistent with each
// other (a WriteNonceSlot that returns nil must be observable by the next
// ReadNonceSlot, even across process restart).
type Store interface {
	// SealingKey returns the device-bound AES-GCM key used for Sealed mode.
	// The caller must Release the returned Secret once done with it.
	SealingKey() (Secret, error)

	// MACKey returns the HMAC-SHA-256 key used for Authenticated mode. The
	// caller must Release the returned Secret once done with it.
	MACKey() (Secret, error)

	// ReadNonceSlot returns the current nonce slot state. A Slot with
	// Initialized == false means no sealed write has ever occurred.
	ReadNonceSlot() (Slot, error)

	// WriteNonceSlot durably persists slot, overwriting any prior value.
	WriteNonceSlot(slot Slot) error
}

// ErrKeyUnavailable is returned by SealingKey/MACKey when the backing store
// cannot currently provide the requested key.
var ErrKeyUnavailable = fmt.Errorf("secretstore: key unavailable")
