// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnsync

import (
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var (
	// Error is the standard error class for this package.
	Error = errs.Class("vnsync error")

	// ErrUnknownModification is returned when a diff entry carries a
	// modification marker the engine does not understand.
	ErrUnknownModification = errs.Class("unknown modification")

	mon = monkit.Package()
)
