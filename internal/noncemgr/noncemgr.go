// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package noncemgr owns the sealed-mode nonce slot: first-use generation of
// a random base nonce, monotone advance by one per write (by two for a write
// of 2^32 or more cipher blocks), rollover detection, and the permanent
// rollover latch.
//
// The read-modify-write of the slot is modeled on tpm.ReadNV/tpm.WriteNV's
// read-under-session, compute, write-under-session shape, but backed by a
// secretstore.Store instead of a TPM NV index, with a sync.Mutex standing in
// for the TPM policy session as the in-process exclusivity mechanism spec §5
// requires.
package noncemgr

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/fido-device-onboard/go-fdo-blobstore/internal/cryptoprim"
	"github.com/fido-device-onboard/go-fdo-blobstore/secretstore"
)

// ErrRollover is returned once the nonce slot has been exhausted; every
// subsequent sealed write fails with this error, permanently, including
// across process restarts.
var ErrRollover = fmt.Errorf("noncemgr: nonce slot exhausted, sealed writes are permanently disabled")

// cycle is 2^96, the size of the nonce space.
var cycle = new(big.Int).Lsh(big.NewInt(1), 8*secretstore.NonceSize)

// blockSize is the AES block size in bytes, used to compute how many GCM
// counter blocks a write will consume.
const blockSize = 16

// maxBlocksBeforeConservativeStep is 2^32; once a single write consumes this
// many or more blocks, the nonce is advanced by 2 instead of 1 to keep any
// two adjacent encryptions' internal 32-bit GCM counters from overlapping.
const maxBlocksBeforeConservativeStep = int64(1) << 32

// Manager serializes nonce advances for a single Store.
type Manager struct {
	store secretstore.Store
	mu    sync.Mutex
}

// New returns a Manager backed by store.
func New(store secretstore.Store) *Manager {
	return &Manager{store: store}
}

// Next allocates the nonce to use for a sealed write of a payload of
// payloadLen bytes, persisting the advanced slot before returning so that a
// crash between persistence and the frame write can never make the nonce
// reusable. It returns ErrRollover if the slot is already exhausted or if
// this advance would roll the counter back to or through the base.
func (m *Manager) Next(payloadLen int) ([secretstore.NonceSize]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, err := m.store.ReadNonceSlot()
	if err != nil {
		return [secretstore.NonceSize]byte{}, fmt.Errorf("noncemgr: reading nonce slot: %w", err)
	}
	if slot.Exhausted {
		return [secretstore.NonceSize]byte{}, ErrRollover
	}

	if !slot.Initialized {
		base, err := cryptoprim.Random(secretstore.NonceSize)
		if err != nil {
			return [secretstore.NonceSize]byte{}, fmt.Errorf("noncemgr: generating base nonce: %w", err)
		}
		var nonce [secretstore.NonceSize]byte
		copy(nonce[:], base)

		newSlot := secretstore.Slot{Base: nonce, Counter: nonce, Initialized: true}
		if err := m.store.WriteNonceSlot(newSlot); err != nil {
			return [secretstore.NonceSize]byte{}, fmt.Errorf("noncemgr: persisting initial nonce slot: %w", err)
		}
		slog.Debug("noncemgr: initialized nonce slot", "base", fmt.Sprintf("%x", nonce))
		return nonce, nil
	}

	step := advanceStep(payloadLen)
	nextCounter, rolled := advance(slot.Base, slot.Counter, step)
	if rolled {
		slot.Exhausted = true
		if err := m.store.WriteNonceSlot(slot); err != nil {
			return [secretstore.NonceSize]byte{}, fmt.Errorf("noncemgr: persisting rollover latch: %w", err)
		}
		slog.Warn("noncemgr: nonce slot exhausted, sealed writes permanently disabled")
		return [secretstore.NonceSize]byte{}, ErrRollover
	}

	newSlot := secretstore.Slot{Base: slot.Base, Counter: nextCounter, Initialized: true}
	if err := m.store.WriteNonceSlot(newSlot); err != nil {
		return [secretstore.NonceSize]byte{}, fmt.Errorf("noncemgr: persisting advanced nonce slot: %w", err)
	}
	return nextCounter, nil
}

// advanceStep returns the number of counter units a write of payloadLen
// bytes should advance the nonce by, per spec §4.2's conservative-step rule.
func advanceStep(payloadLen int) int64 {
	blocks := (int64(payloadLen) + blockSize - 1) / blockSize
	if blocks < maxBlocksBeforeConservativeStep {
		return 1
	}
	return 2
}

// advance computes counter + step as a 96-bit big-endian unsigned integer,
// and reports whether doing so has traversed the full 2^96 cycle back to or
// through base, i.e. the distance travelled from base is now >= 2^96.
func advance(base, counter [secretstore.NonceSize]byte, step int64) (next [secretstore.NonceSize]byte, rolled bool) {
	baseInt := new(big.Int).SetBytes(base[:])
	counterInt := new(big.Int).SetBytes(counter[:])

	distance := new(big.Int).Sub(counterInt, baseInt)
	if distance.Sign() < 0 {
		distance.Add(distance, cycle)
	}
	distance.Add(distance, big.NewInt(step))

	if distance.Cmp(cycle) >= 0 {
		return [secretstore.NonceSize]byte{}, true
	}

	nextInt := new(big.Int).Add(baseInt, distance)
	nextInt.Mod(nextInt, cycle)
	nextInt.FillBytes(next[:])
	return next, false
}
