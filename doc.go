// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package blob implements a device-local secure blob store offering three
// levels of protection for named byte blobs:
//
//   - Plain: no protection, bytes stored as-is.
//   - Authenticated: integrity only, via an HMAC-SHA-256 tag.
//   - Sealed: confidentiality and integrity, via AES-GCM under a
//     monotonically advancing device-bound nonce.
//
// Keys and the sealed-mode nonce slot are owned by a secretstore.Store,
// which callers supply; this package never generates or retains key
// material beyond the lifetime of a single Read or Write call.
package blob
