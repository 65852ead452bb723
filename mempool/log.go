package mempool

import "github.com/tenebrium/tenebriumd/logger"

var log = logger.RegisterSubSystem("TXMP")
