package globals

import "github.com/hashicorp/go-hclog"

// AppLogger is the process wide logger. Components derive named sub-loggers from it.
var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "lightspeed-relay",
	Level: hclog.LevelFromString("INFO"),
})
