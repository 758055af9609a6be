// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flog

import (
	"io"

	"github.com/jrick/logrotate/rotator"
)

// NewRotatingLogger builds a Logger named subsystem that writes to a
// size-rotated file at path, in addition to w (typically os.Stdout). Pass a
// nil w to write only to the file.
func NewRotatingLogger(path string, maxRollMB int64, w io.Writer, subsystem string) (*SLogger, error) {
	r, err := rotator.New(path, maxRollMB*1024, false, 10)
	if err != nil {
		return nil, err
	}

	var out io.Writer = r
	if w != nil {
		out = io.MultiWriter(w, r)
	}

	return NewSLogger(out, subsystem), nil
}
