package store

import (
	"sync"

	"meshchat/pkg/logger"
	"meshchat/pkg/telemetry"
)

// Subscription registers sync interest in a slice of a collection. In a
// deployment this is what drives replication of the matching documents to
// the local replica; locally it is lifecycle bookkeeping the session layer
// must balance with Cancel.
type Subscription struct {
	collection string
	match      Filter
	id         int
	once       sync.Once
}

var (
	subMu         sync.Mutex
	subscriptions = map[int]*Subscription{}
	subNextID     int
)

// Subscribe registers sync interest. The caller owns the handle and must
// Cancel it when the served room goes away.
func Subscribe(collection string, match Filter) *Subscription {
	s := &Subscription{collection: collection, match: match}
	subMu.Lock()
	s.id = subNextID
	subNextID++
	subscriptions[s.id] = s
	subMu.Unlock()
	telemetry.SubscriptionsActive.Inc()
	logger.Debug("subscription_registered", "collection", collection)
	return s
}

// Collection reports which collection the subscription covers.
func (s *Subscription) Collection() string { return s.collection }

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		subMu.Lock()
		delete(subscriptions, s.id)
		subMu.Unlock()
		telemetry.SubscriptionsActive.Dec()
		logger.Debug("subscription_canceled", "collection", s.collection)
	})
}

// ActiveSubscriptions returns the number of live subscription handles.
func ActiveSubscriptions() int {
	subMu.Lock()
	defer subMu.Unlock()
	return len(subscriptions)
}

func cancelAllSubscriptions() {
	subMu.Lock()
	all := make([]*Subscription, 0, len(subscriptions))
	for _, s := range subscriptions {
		all = append(all, s)
	}
	subMu.Unlock()
	for _, s := range all {
		s.Cancel()
	}
}
