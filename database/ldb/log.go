package ldb

import "github.com/tenebrium/tenebriumd/logger"

var log = logger.RegisterSubSystem("LVDB")
