package ddp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang/glog"
)

// runs `do` and recovers a panic as an error, or returns nil if `do` returned normally.
// A recovered panic is logged as a warning under `tag` with its stack.
func recoverPanic(tag string, do func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var ok bool
		if err, ok = r.(error); !ok {
			err = fmt.Errorf("%v", r)
		}
		glog.Warningf("[%s]recovered = %s\n", tag, panicJson(err, debug.Stack()))
	}()
	do()
	return
}

// one line of json so the stack stays in a single log entry
func panicJson(err error, stack []byte) string {
	stackLines := []string{}
	for _, line := range strings.Split(string(stack), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			stackLines = append(stackLines, line)
		}
	}
	b, _ := json.Marshal(map[string]any{
		"error": fmt.Sprintf("%T=%s", err, err),
		"stack": stackLines,
	})
	return string(b)
}

// logs the start and duration of `do` under `tag`
func traceCall[R any](tag string, do func() (R, error)) (R, error) {
	start := time.Now()
	glog.Infof("[trace]%s start\n", tag)
	result, err := do()
	elapsed := time.Since(start)
	if err != nil {
		glog.Infof("[trace]%s end (%s) err = %s\n", tag, elapsed, err)
	} else {
		glog.Infof("[trace]%s end (%s)\n", tag, elapsed)
	}
	return result, err
}

func functionName(f any) string {
	v := reflect.ValueOf(f)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Sprintf("%T", f)
	}
	return runtime.FuncForPC(v.Pointer()).Name()
}
