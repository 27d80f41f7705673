/*
 * Copyright 2025 Kartex Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package auth verifies the HMAC-SHA256 signature prefix carried by
// packets on the authenticated UDP ingest path.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// SignatureSize is the length of the raw HMAC-SHA256 prefix.
const SignatureSize = sha256.Size

var (
	ErrPacketTooShort = errors.New("packet shorter than signature")
	ErrBadSignature   = errors.New("signature mismatch")
)

// Verifier checks and produces signed packets for a single shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	key := make([]byte, len(secret))
	copy(key, secret)

	return &Verifier{secret: key}
}

// Verify splits packet into signature and payload, recomputes the HMAC over
// the payload, and returns the payload on success. Comparison is constant
// time.
func (v *Verifier) Verify(packet []byte) ([]byte, error) {
	if len(packet) < SignatureSize {
		return nil, ErrPacketTooShort
	}

	sig := packet[:SignatureSize]
	payload := packet[SignatureSize:]

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)

	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrBadSignature
	}

	return payload, nil
}

// Sign prepends the HMAC-SHA256 of payload. Used by tests and by client
// tooling that speaks the authenticated UDP protocol.
func (v *Verifier) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)

	packet := make([]byte, 0, SignatureSize+len(payload))
	packet = append(packet, mac.Sum(nil)...)
	packet = append(packet, payload...)

	return packet
}
