// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport

import "time"

// noDeadline clears any previously set deadline on the underlying conn.
var noDeadline time.Time

// pastDeadline is used by Cancel to force any blocked Read/Write to return
// immediately with a timeout error, regardless of what the caller's
// context looked like.
var pastDeadline = time.Unix(1, 0)
