package ddp

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `ddp` package:
// Info (V(0)):
//     abnormal events. This level should be silent on normal operation.
//     this includes:
//     - transport errors and the connection ending
//     - error frames from the server
//     - recovered observer panics (as warnings)
// V(1):
//     frames that were dropped or ignored, e.g. undecodable frames,
//     unknown message kinds, responses for unknown request ids
// V(2):
//     per frame trace of send and receive

const LogLevelUrgent glog.Level = 0
const LogLevelInfo glog.Level = 1
const LogLevelDebug glog.Level = 2

type LogFunction func(string, ...any)

func LogFn(level glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			glog.Infof("[%s]%s\n", tag, m)
		}
	}
}
