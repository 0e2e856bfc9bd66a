package store

import (
	"sync"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
)

// Observer is a live query: it re-runs its query and re-emits the result set
// on every commit to the observed collection. Delivery is latest-wins so a
// slow consumer never blocks writers.
type Observer struct {
	collection string
	match      Filter
	less       Less

	ch      chan []models.Doc
	trigger chan struct{}
	done    chan struct{}
	once    sync.Once
	id      int
}

var (
	obsMu     sync.Mutex
	observers = map[int]*Observer{}
	obsNextID int
)

// Observe registers a live query against the collection. The current result
// set is delivered immediately.
func Observe(collection string, match Filter, less Less) *Observer {
	o := &Observer{
		collection: collection,
		match:      match,
		less:       less,
		ch:         make(chan []models.Doc, 1),
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	obsMu.Lock()
	o.id = obsNextID
	obsNextID++
	observers[o.id] = o
	obsMu.Unlock()

	go o.run()
	o.fire()
	return o
}

// C is the stream of result-set snapshots.
func (o *Observer) C() <-chan []models.Doc { return o.ch }

// Cancel stops the observer. Safe to call more than once.
func (o *Observer) Cancel() {
	o.once.Do(func() {
		obsMu.Lock()
		delete(observers, o.id)
		obsMu.Unlock()
		close(o.done)
	})
}

func (o *Observer) fire() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

func (o *Observer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.trigger:
		}
		docs, err := Query(o.collection, o.match, o.less)
		if err != nil {
			logger.Warn("observer_query_failed", "collection", o.collection, "error", err)
			continue
		}
		// latest-wins delivery
		select {
		case o.ch <- docs:
		default:
			select {
			case <-o.ch:
			default:
			}
			select {
			case o.ch <- docs:
			default:
			}
		}
	}
}

// notifyCollection wakes every observer of the collection after a commit.
func notifyCollection(collection string) {
	obsMu.Lock()
	defer obsMu.Unlock()
	for _, o := range observers {
		if o.collection == collection {
			o.fire()
		}
	}
}

func cancelAllObservers() {
	obsMu.Lock()
	all := make([]*Observer, 0, len(observers))
	for _, o := range observers {
		all = append(all, o)
	}
	obsMu.Unlock()
	for _, o := range all {
		o.Cancel()
	}
}
