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

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier([]byte("shared-secret"))
	payload := []byte(`{"@t":"2025-01-01T00:00:00Z","@mt":"hello"}`)

	packet := v.Sign(payload)
	require.Len(t, packet, SignatureSize+len(payload))

	got, err := v.Verify(packet)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestVerifyEmptyPayload(t *testing.T) {
	v := NewVerifier([]byte("shared-secret"))

	packet := v.Sign(nil)
	require.Len(t, packet, SignatureSize)

	got, err := v.Verify(packet)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifyTooShort(t *testing.T) {
	v := NewVerifier([]byte("shared-secret"))

	_, err := v.Verify(make([]byte, SignatureSize-1))
	assert.ErrorIs(t, err, ErrPacketTooShort)
}

func TestVerifyTamperedPayload(t *testing.T) {
	v := NewVerifier([]byte("shared-secret"))

	packet := v.Sign([]byte("original payload"))
	packet[len(packet)-1] ^= 0x01

	_, err := v.Verify(packet)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyTamperedSignature(t *testing.T) {
	v := NewVerifier([]byte("shared-secret"))

	packet := v.Sign([]byte("original payload"))
	packet[0] ^= 0x01

	_, err := v.Verify(packet)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := NewVerifier([]byte("secret-a"))
	verifier := NewVerifier([]byte("secret-b"))

	_, err := verifier.Verify(signer.Sign([]byte("payload")))
	assert.ErrorIs(t, err, ErrBadSignature)
}
