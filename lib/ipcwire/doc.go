// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipcwire defines the wire format spoken between asuku hook
// processes and the asuku daemon over the local Unix socket.
//
// Every message on the socket is a frame: a 4-byte big-endian payload
// length followed by that many bytes of JSON. [EncodeFrame] and
// [DecodeFrame] implement the framing; [DecodeFrame] extracts at most
// one frame per call so readers that buffer a byte stream can loop over
// pipelined frames by slicing off the consumed prefix.
//
// The JSON body of a request is a [Message] envelope carrying the
// protocol version and a [Payload]. Payload is a closed sum type:
// [PermissionRequestEvent], [NotificationEvent], [StatusUpdateEvent],
// [Heartbeat], and [Unknown]. Unknown preserves the tag of any payload
// type this build does not recognize, so newer hooks talking to an
// older daemon decode cleanly instead of failing.
//
// Replies travel on the same connection with the same framing: a
// [Response] correlates a decision with a permission request, and an
// [ErrorResponse] reports protocol-level failures such as a version
// mismatch or a malformed envelope.
//
// The package performs no I/O beyond the optional [WriteFrame] and
// [ReadFrame] stream helpers and has no asuku-internal dependencies.
package ipcwire
