// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var (
	// Error is the standard error class for this package.
	Error = errs.Class("store error")

	mon = monkit.Package()
)
