// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package secretstore_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fido-device-onboard/go-fdo-blobstore/secretstore"
)

func TestSQLiteSealingKeyPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")

	first, err := secretstore.OpenSQLite(path, "")
	if err != nil {
		t.Fatal(err)
	}
	k1, err := first.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte(nil), k1.Bytes()...)
	k1.Release()
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := secretstore.OpenSQLite(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	k2, err := second.SealingKey()
	if err != nil {
		t.Fatal(err)
	}
	defer k2.Release()
	if !bytes.Equal(k2.Bytes(), want) {
		t.Fatal("sealing key should survive a close/reopen of the same database file")
	}
}

func TestSQLiteEncryptedDatabaseRequiresPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encrypted.db")

	store, err := secretstore.OpenSQLite(path, "correct-password")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.MACKey(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := secretstore.OpenSQLite(path, "wrong-password"); err == nil {
		t.Fatal("opening an xts-encrypted database with the wrong password should fail")
	}
}

func TestSQLiteNonceSlotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	store, err := secretstore.OpenSQLite(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	empty, err := store.ReadNonceSlot()
	if err != nil {
		t.Fatal(err)
	}
	if empty.Initialized {
		t.Fatal("slot should report uninitialized before any write")
	}

	var slot secretstore.Slot
	for i := range slot.Base {
		slot.Base[i] = byte(2 * i)
	}
	slot.Counter = slot.Base
	slot.Initialized = true
	if err := store.WriteNonceSlot(slot); err != nil {
		t.Fatal(err)
	}

	got, err := store.ReadNonceSlot()
	if err != nil {
		t.Fatal(err)
	}
	if got.Base != slot.Base || got.Counter != slot.Counter {
		t.Fatalf("round-tripped slot = %+v, want %+v", got, slot)
	}

	slot.Exhausted = true
	if err := store.WriteNonceSlot(slot); err != nil {
		t.Fatal(err)
	}
	got, err = store.ReadNonceSlot()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Exhausted {
		t.Fatal("exhausted flag should round-trip through an upsert")
	}
}
