// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/tenebrium/tenebriumd/logger"
	"github.com/tenebrium/tenebriumd/util/panics"
)

var log = logger.RegisterSubSystem("TEND")
var spawn = panics.GoroutineWrapperFunc(log)
