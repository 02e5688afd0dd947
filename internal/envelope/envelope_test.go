// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package envelope_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fido-device-onboard/go-fdo-blobstore/internal/envelope"
)

func TestPlainRoundTrip(t *testing.T) {
	payload := []byte("hello")
	frame := envelope.EncodePlain(payload)
	if !bytes.Equal(frame, payload) {
		t.Fatalf("plain frame should equal payload, got %x", frame)
	}
	n, err := envelope.SizeOf(envelope.ModePlain, len(frame))
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("SizeOf = %d, want %d", n, len(payload))
	}
}

func TestAuthenticatedRoundTrip(t *testing.T) {
	mac := bytes.Repeat([]byte{0xAB}, envelope.MACSize)
	payload := bytes.Repeat([]byte{0x11}, 100)

	frame, err := envelope.EncodeAuthenticated(mac, payload)
	if err != nil {
		t.Fatal(err)
	}
	wantLen := envelope.MACSize + envelope.LenSize + len(payload)
	if len(frame) != wantLen {
		t.Fatalf("frame length = %d, want %d", len(frame), wantLen)
	}

	parsed, err := envelope.ParseAuthenticated(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(parsed.MAC[:], mac) {
		t.Fatal("parsed MAC mismatch")
	}
	if !bytes.Equal(parsed.Payload, payload) {
		t.Fatal("parsed payload mismatch")
	}

	n, err := envelope.SizeOf(envelope.ModeAuthenticated, len(frame))
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("SizeOf = %d, want %d", n, len(payload))
	}
}

func TestSealedRoundTrip(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x01}, envelope.NonceSize)
	tag := bytes.Repeat([]byte{0x02}, envelope.TagSize)
	ciphertext := bytes.Repeat([]byte{0x03}, 32)

	frame, err := envelope.EncodeSealed(nonce, tag, ciphertext)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := envelope.ParseSealed(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(parsed.Nonce[:], nonce) {
		t.Fatal("parsed nonce mismatch")
	}
	if !bytes.Equal(parsed.Tag[:], tag) {
		t.Fatal("parsed tag mismatch")
	}
	if !bytes.Equal(parsed.Ciphertext, ciphertext) {
		t.Fatal("parsed ciphertext mismatch")
	}
}

func TestParseAuthenticatedMalformed(t *testing.T) {
	cases := map[string][]byte{
		"too short":        bytes.Repeat([]byte{0}, envelope.MACSize),
		"bad length field": append(bytes.Repeat([]byte{0}, envelope.MACSize+envelope.LenSize), []byte{1, 2, 3}...),
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := envelope.ParseAuthenticated(frame); !errors.Is(err, envelope.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParseSealedMalformed(t *testing.T) {
	if _, err := envelope.ParseSealed([]byte{1, 2, 3}); !errors.Is(err, envelope.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestSizeOfCorruptLength(t *testing.T) {
	if _, err := envelope.SizeOf(envelope.ModeAuthenticated, envelope.MACSize+envelope.LenSize-1); !errors.Is(err, envelope.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
