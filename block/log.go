// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package block

import "github.com/littlekickoffkittie/legacy-protocol/flog"

// log is a logger that is initialized with no output filters. This means
// the package will not perform any logging by default until the caller
// requests it.
var log flog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all library log output. Logging output is disabled
// by default until UseLogger is called.
func DisableLog() {
	log = flog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger flog.Logger) {
	log = logger
}
