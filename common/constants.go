package common

import "time"

// StartTime is the process start in unix seconds.
var StartTime = time.Now().Unix()

// Version is stamped at build time via -ldflags "-X".
var Version = "v0.0.0"
