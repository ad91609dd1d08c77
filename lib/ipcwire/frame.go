// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// frameHeaderLength is the size of the big-endian length prefix.
const frameHeaderLength = 4

// MaxFrameSize is the largest payload a frame may declare (1 MiB).
// Permission requests carry tool input, which for large file writes can
// be sizable, but nothing legitimate approaches this bound.
const MaxFrameSize = 1 << 20

var (
	// ErrInsufficient reports that the buffer does not yet hold a
	// complete frame. The caller should read more bytes and retry.
	ErrInsufficient = errors.New("ipcwire: insufficient data for a complete frame")

	// ErrFrameTooLarge reports a declared payload length above
	// MaxFrameSize. No amount of additional data makes the buffer
	// decodable; the caller should abort the connection.
	ErrFrameTooLarge = errors.New("ipcwire: frame exceeds maximum size")
)

// EncodeFrame returns payload prefixed with its 4-byte big-endian
// length.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderLength+len(payload))
	binary.BigEndian.PutUint32(frame[:frameHeaderLength], uint32(len(payload)))
	copy(frame[frameHeaderLength:], payload)
	return frame
}

// DecodeFrame extracts the first complete frame from buffer. It returns
// the payload and the number of bytes consumed (header plus payload).
//
// Returns ErrInsufficient when fewer than 4 header bytes are buffered
// or when the declared payload has not fully arrived. Returns
// ErrFrameTooLarge as soon as the header declares a length above
// MaxFrameSize, regardless of how many bytes follow.
//
// The returned payload aliases buffer. Callers that retain it across
// buffer reuse must copy it.
func DecodeFrame(buffer []byte) (payload []byte, consumed int, err error) {
	if len(buffer) < frameHeaderLength {
		return nil, 0, ErrInsufficient
	}
	length := binary.BigEndian.Uint32(buffer[:frameHeaderLength])
	if length > MaxFrameSize {
		return nil, 0, ErrFrameTooLarge
	}
	total := frameHeaderLength + int(length)
	if len(buffer) < total {
		return nil, 0, ErrInsufficient
	}
	return buffer[frameHeaderLength:total], total, nil
}

// WriteFrame writes payload to w as a single frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame: %w (%d bytes)", ErrFrameTooLarge, len(payload))
	}
	if _, err := w.Write(EncodeFrame(payload)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r and returns its payload.
// Returns io.EOF if r is at end of stream before any header byte, and
// io.ErrUnexpectedEOF if the stream ends inside a frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("read frame: %w (declared %d bytes)", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
