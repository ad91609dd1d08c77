// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestDecodeFrameShortHeader(t *testing.T) {
	for length := 0; length < frameHeaderLength; length++ {
		buffer := bytes.Repeat([]byte{0}, length)
		_, consumed, err := DecodeFrame(buffer)
		if !errors.Is(err, ErrInsufficient) {
			t.Errorf("DecodeFrame(%d bytes) error = %v, want ErrInsufficient", length, err)
		}
		if consumed != 0 {
			t.Errorf("DecodeFrame(%d bytes) consumed = %d, want 0", length, consumed)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"protocolVersion":1}`),
		bytes.Repeat([]byte("a"), 70000),
	}
	for _, payload := range payloads {
		frame := EncodeFrame(payload)
		decoded, consumed, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("DecodeFrame(%d byte payload): %v", len(payload), err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Errorf("payload mismatch for %d byte payload", len(payload))
		}
		if consumed != len(frame) {
			t.Errorf("consumed = %d, want %d", consumed, len(frame))
		}
	}
}

func TestDecodeFramePartialBody(t *testing.T) {
	frame := EncodeFrame([]byte("hello world"))
	for cut := frameHeaderLength; cut < len(frame); cut++ {
		if _, _, err := DecodeFrame(frame[:cut]); !errors.Is(err, ErrInsufficient) {
			t.Fatalf("DecodeFrame(first %d bytes) error = %v, want ErrInsufficient", cut, err)
		}
	}
}

func TestDecodeFrameOversized(t *testing.T) {
	header := make([]byte, frameHeaderLength)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)

	// The declared length alone decides; trailing bytes never help.
	for _, extra := range []int{0, 10, MaxFrameSize + 1} {
		buffer := append(append([]byte(nil), header...), make([]byte, extra)...)
		if _, _, err := DecodeFrame(buffer); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("DecodeFrame(oversized, %d extra) error = %v, want ErrFrameTooLarge", extra, err)
		}
	}
}

func TestDecodeFramePipelined(t *testing.T) {
	var stream []byte
	stream = append(stream, EncodeFrame([]byte("first"))...)
	stream = append(stream, EncodeFrame([]byte("second"))...)
	stream = append(stream, EncodeFrame([]byte("thi"))[:5]...)

	var got []string
	for {
		payload, consumed, err := DecodeFrame(stream)
		if errors.Is(err, ErrInsufficient) {
			break
		}
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		got = append(got, string(payload))
		stream = stream[consumed:]
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("decoded frames = %q, want [first second]", got)
	}
	if len(stream) != 5 {
		t.Errorf("leftover = %d bytes, want 5", len(stream))
	}
}

func TestReadWriteFrame(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, []byte("one")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := WriteFrame(&buffer, []byte("two")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	for _, want := range []string{"one", "two"} {
		payload, err := ReadFrame(&buffer)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(payload) != want {
			t.Errorf("ReadFrame = %q, want %q", payload, want)
		}
	}
	if _, err := ReadFrame(&buffer); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	frame := EncodeFrame([]byte("truncated payload"))
	_, err := ReadFrame(bytes.NewReader(frame[:len(frame)-3]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadFrame(truncated) = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestWriteFrameRejectsOversized(t *testing.T) {
	err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteFrame(oversized) = %v, want ErrFrameTooLarge", err)
	}
}
