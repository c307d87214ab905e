package ddp

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/golang/glog"
)

// An ObserverFunction receives a copy of the affected document with its id
// attached under `_id`, and the message kind that caused the mutation
// (`added`, `addedBefore`, `changed`, `removed`).
type ObserverFunction func(doc Document, event string)

// collection name -> observers in registration order.
// Not safe for concurrent use, the client guards it with its state lock.
type observerRegistry struct {
	observers map[string][]ObserverFunction
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{
		observers: map[string][]ObserverFunction{},
	}
}

func (self *observerRegistry) watch(collectionName string, observer ObserverFunction) {
	self.observers[collectionName] = append(self.observers[collectionName], observer)
}

// returns a copy of the list so it can be iterated without the lock held
func (self *observerRegistry) get(collectionName string) []ObserverFunction {
	return slices.Clone(self.observers[collectionName])
}

// Each observer gets its own copy of `doc`. Observers run in order on the calling goroutine.
// A panic in one observer is recovered and logged, and the remaining observers still run.
func notifyObservers(observers []ObserverFunction, collectionName string, doc Document, id string, event string) {
	for _, observer := range observers {
		docCopy, err := doc.Clone()
		if err != nil {
			glog.Infof("[c]copy %s/%s error = %s\n", collectionName, id, err)
			return
		}
		docCopy[IdField] = id
		tag := fmt.Sprintf("c observer %s %s %s/%s", functionName(observer), event, collectionName, id)
		recoverPanic(tag, func() {
			observer(docCopy, event)
		})
	}
}
