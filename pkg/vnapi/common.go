// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnapi

import (
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var (
	// Error is the standard error class for this package.
	Error = errs.Class("vnapi error")

	// ErrProtocol means the remote endpoint was unreachable or kept
	// erroring beyond the transfer error budget.
	ErrProtocol = errs.Class("protocol error")

	// ErrPaginationOverflow means the provider did not signal the end of
	// pagination within the configured chunk ceiling.
	ErrPaginationOverflow = errs.Class("pagination overflow")

	// ErrIncorrectParameter means the caller supplied an incorrect or
	// missing parameter.
	ErrIncorrectParameter = errs.Class("incorrect parameter")

	mon = monkit.Package()
)
