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

package parser

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrFrameTooLarge means a declared or buffered frame exceeds the
	// configured maximum. The connection must be dropped: the stream can
	// no longer be resynchronized.
	ErrFrameTooLarge = errors.New("syslog frame exceeds maximum size")

	errBadFrameHeader = errors.New("malformed octet-counting header")
)

// Framer splits a TCP syslog stream into messages. It handles RFC 5425
// octet-counting frames ("123 <34>1 ...") and falls back to newline
// framing when the stream does not start with a digit. A Framer is owned
// by a single connection goroutine and is not safe for concurrent use.
type Framer struct {
	maxSize int
	buf     []byte
}

func NewFramer(maxSize int) *Framer {
	return &Framer{maxSize: maxSize}
}

// Feed appends freshly read bytes and returns every complete message now
// available. A returned ErrFrameTooLarge is fatal for the connection; any
// messages returned alongside it were complete before the oversized frame.
func (f *Framer) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var msgs [][]byte

	for len(f.buf) > 0 {
		msg, err := f.next()
		if err != nil {
			return msgs, err
		}

		if msg == nil {
			break
		}

		msgs = append(msgs, msg)
	}

	// An incomplete frame may never complete; cap what we are willing to
	// hold so a sender cannot stall the connection with an endless prefix.
	if len(f.buf) > f.maxSize+maxLenDigits+1 {
		return msgs, ErrFrameTooLarge
	}

	return msgs, nil
}

// maxLenDigits bounds the decimal length prefix we accept.
const maxLenDigits = 10

func (f *Framer) next() ([]byte, error) {
	if f.buf[0] >= '0' && f.buf[0] <= '9' {
		return f.nextOctetCounted()
	}

	return f.nextLine(), nil
}

func (f *Framer) nextOctetCounted() ([]byte, error) {
	sp := bytes.IndexByte(f.buf, ' ')
	if sp < 0 {
		if len(f.buf) > maxLenDigits {
			return nil, fmt.Errorf("%w: no space after %d bytes", errBadFrameHeader, len(f.buf))
		}

		return nil, nil
	}

	n := 0

	for _, c := range f.buf[:sp] {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", errBadFrameHeader, f.buf[:sp])
		}

		n = n*10 + int(c-'0')

		if n > f.maxSize {
			return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, n)
		}
	}

	if len(f.buf) < sp+1+n {
		return nil, nil
	}

	msg := make([]byte, n)
	copy(msg, f.buf[sp+1:sp+1+n])
	f.buf = f.buf[sp+1+n:]

	return msg, nil
}

func (f *Framer) nextLine() []byte {
	nl := bytes.IndexByte(f.buf, '\n')
	if nl < 0 {
		return nil
	}

	msg := make([]byte, nl)
	copy(msg, f.buf[:nl])
	f.buf = f.buf[nl+1:]

	if len(msg) == 0 {
		// Skip blank lines between messages.
		return f.nextLine()
	}

	return msg
}
