package signal

import "github.com/tenebrium/tenebriumd/logger"

var log = logger.RegisterSubSystem("SIGN")
