// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package secretstore_test

import (
	"bytes"
	"testing"

	"github.com/fido-device-onboard/go-fdo-blobstore/secretstore"
)

func TestFileSealingKeyAndMACKeyAreStableAndDistinct(t *testing.T) {
	store := secretstore.NewFile(t.TempDir())

	sealA, err := store.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	macA, err := store.MACKey()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(sealA.Bytes(), macA.Bytes()) {
		t.Fatal("sealing key and MAC key must not collide")
	}
	sealA.Release()
	macA.Release()

	sealB, err := store.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	defer sealB.Release()
	// sealA has been released (zeroized), so re-derive to compare; a fresh
	// call against the same master secret must reproduce the same key.
	sealAgain, err := store.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	defer sealAgain.Release()
	if !bytes.Equal(sealB.Bytes(), sealAgain.Bytes()) {
		t.Fatal("sealing key should be deterministic for a given master secret")
	}
}

func TestFileSealingKeySurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first := secretstore.NewFile(dir)
	k1, err := first.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte(nil), k1.Bytes()...)
	k1.Release()

	second := secretstore.NewFile(dir)
	k2, err := second.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	defer k2.Release()
	if !bytes.Equal(k2.Bytes(), want) {
		t.Fatal("sealing key should be stable across a fresh File backed by the same directory")
	}
}

func TestFileReleaseZeroizes(t *testing.T) {
	store := secretstore.NewFile(t.TempDir())
	k, err := store.MACKey()
	if err != nil {
		t.Fatal(err)
	}
	b := k.Bytes()
	k.Release()
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroized after Release", i)
		}
	}
}

func TestFileNonceSlotRoundTrip(t *testing.T) {
	store := secretstore.NewFile(t.TempDir())

	empty, err := store.ReadNonceSlot()
	if err != nil {
		t.Fatal(err)
	}
	if empty.Initialized {
		t.Fatal("slot should report uninitialized before any write")
	}

	var slot secretstore.Slot
	for i := range slot.Base {
		slot.Base[i] = byte(i)
		slot.Counter[i] = byte(i + 1)
	}
	slot.Initialized = true
	if err := store.WriteNonceSlot(slot); err != nil {
		t.Fatal(err)
	}

	got, err := store.ReadNonceSlot()
	if err != nil {
		t.Fatal(err)
	}
	if got.Base != slot.Base || got.Counter != slot.Counter || got.Exhausted != slot.Exhausted {
		t.Fatalf("round-tripped slot = %+v, want %+v", got, slot)
	}
}
