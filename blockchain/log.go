package blockchain

import "github.com/tenebrium/tenebriumd/logger"

var log = logger.RegisterSubSystem("CHAN")
