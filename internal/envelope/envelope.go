// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package envelope encodes and decodes the three on-disk blob frame layouts.
// It performs no I/O and no cryptography: only byte layout and length
// arithmetic, bit-exact with the original SDO storage_if_linux.c formats.
//
//	Plain:          <payload>
//	Authenticated:  <mac:32> <len:4, big-endian> <payload:len>
//	Sealed:         <nonce:12> <tag:16> <len:4, big-endian> <ciphertext:len>
package envelope

import (
	"encoding/binary"
	"fmt"
)

// Fixed sizes, matching PLATFORM_HMAC_SIZE / PLATFORM_IV_DEFAULT_LEN /
// PLATFORM_GCM_TAG_SIZE / BLOB_CONTENT_SIZE in the source implementation.
const (
	MACSize   = 32
	NonceSize = 12
	TagSize   = 16
	LenSize   = 4
)

// ErrMalformed is returned when a frame's declared length disagrees with the
// number of bytes actually present, or the frame is shorter than its fixed
// header.
var ErrMalformed = fmt.Errorf("envelope: malformed frame")

// Authenticated holds the parsed fields of an Authenticated-mode frame.
type Authenticated struct {
	MAC     [MACSize]byte
	Payload []byte
}

// Sealed holds the parsed fields of a Sealed-mode frame.
type Sealed struct {
	Nonce      [NonceSize]byte
	Tag        [TagSize]byte
	Ciphertext []byte
}

// EncodePlain returns the Plain frame for payload: the payload unchanged.
func EncodePlain(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}

// EncodeAuthenticated assembles an Authenticated frame. mac must be
// MACSize bytes; it is computed by the caller over payload alone.
func EncodeAuthenticated(mac, payload []byte) ([]byte, error) {
	if len(mac) != MACSize {
		return nil, fmt.Errorf("envelope: mac must be %d bytes", MACSize)
	}
	frame := make([]byte, 0, MACSize+LenSize+len(payload))
	frame = append(frame, mac...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	return frame, nil
}

// ParseAuthenticated splits an Authenticated frame into its MAC and payload.
func ParseAuthenticated(frame []byte) (*Authenticated, error) {
	if len(frame) < MACSize+LenSize {
		return nil, ErrMalformed
	}
	length := binary.BigEndian.Uint32(frame[MACSize : MACSize+LenSize])
	payload := frame[MACSize+LenSize:]
	if uint64(len(payload)) != uint64(length) {
		return nil, ErrMalformed
	}
	var a Authenticated
	copy(a.MAC[:], frame[:MACSize])
	a.Payload = payload
	return &a, nil
}

// EncodeSealed assembles a Sealed frame. nonce and tag must be NonceSize and
// TagSize bytes respectively.
func EncodeSealed(nonce, tag, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("envelope: nonce must be %d bytes", NonceSize)
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("envelope: tag must be %d bytes", TagSize)
	}
	frame := make([]byte, 0, NonceSize+TagSize+LenSize+len(ciphertext))
	frame = append(frame, nonce...)
	frame = append(frame, tag...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(ciphertext)))
	frame = append(frame, ciphertext...)
	return frame, nil
}

// ParseSealed splits a Sealed frame into its nonce, tag and ciphertext.
func ParseSealed(frame []byte) (*Sealed, error) {
	const headerLen = NonceSize + TagSize + LenSize
	if len(frame) < headerLen {
		return nil, ErrMalformed
	}
	length := binary.BigEndian.Uint32(frame[NonceSize+TagSize : headerLen])
	ciphertext := frame[headerLen:]
	if uint64(len(ciphertext)) != uint64(length) {
		return nil, ErrMalformed
	}
	var s Sealed
	copy(s.Nonce[:], frame[:NonceSize])
	copy(s.Tag[:], frame[NonceSize:NonceSize+TagSize])
	s.Ciphertext = ciphertext
	return &s, nil
}

// SizeOf returns the payload length encoded within a frame of the given
// total size, without needing the frame's bytes. It returns ErrMalformed if
// frameLen is smaller than the mode's fixed overhead.
func SizeOf(mode Mode, frameLen int) (int, error) {
	switch mode {
	case ModePlain:
		return frameLen, nil
	case ModeAuthenticated:
		if frameLen < MACSize+LenSize {
			return 0, ErrMalformed
		}
		return frameLen - MACSize - LenSize, nil
	case ModeSealed:
		if frameLen < NonceSize+TagSize+LenSize {
			return 0, ErrMalformed
		}
		return frameLen - NonceSize - TagSize - LenSize, nil
	default:
		return 0, fmt.Errorf("envelope: unknown mode %v", mode)
	}
}

// Mode distinguishes the three frame layouts. It mirrors blob.Mode but lives
// here to keep this package free of a dependency on the root package.
type Mode int

// Mode values, matching the three layouts documented in the package doc.
const (
	ModePlain Mode = iota
	ModeAuthenticated
	ModeSealed
)
