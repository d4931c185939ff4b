// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

/*
Package rcon implements a client for the RCON protocol spoken by Minecraft servers for remote
administration over TCP.

A [Session] owns one connection. [Open] dials the server and performs the login exchange before
returning, so every session handed to a caller is authenticated. Commands are plain text sent with
[Session.Execute]; the reply text is returned unchanged. Higher level helpers that build command
lines for common server operations live in the minecraft subpackage.

# Wire format

Every packet is framed as little-endian 32 bit integers followed by the body:

	int32  size       // 4 + 4 + len(body) + 2, not counting itself
	int32  request id // constant for a session, echoed by the server
	int32  type       // 3 = login, 2 = command; replies are not checked
	[]byte body
	byte   0x00
	byte   0x00

Responses are read by first reading the size and then exactly that many bytes, across as many
reads as the transport needs.

# Errors

Login rejections match [ErrAuthFailed]. A reply with a foreign request ID matches
[ErrCorrelationMismatch]. Connection and decoding failures satisfy [IsTransport]. The last two
break the session they happen on, see [Session].

The package never retries. [Redialer] is an opt-in helper that opens replacement sessions with
backoff for callers who want that policy.
*/
package rcon
