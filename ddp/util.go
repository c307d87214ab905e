package ddp

import (
	"strconv"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// request ids on the wire are decimal strings from a counter owned by one client.
// call, sub and unsub share the counter so ids never collide across kinds,
// and an id is never reused for the lifetime of the client
type requestIds struct {
	counter atomic.Uint64
}

func (self *requestIds) next() string {
	return strconv.FormatUint(self.counter.Add(1), 10)
}
