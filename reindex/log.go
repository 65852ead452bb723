package reindex

import "github.com/tenebrium/tenebriumd/logger"

var log = logger.RegisterSubSystem("RIDX")
