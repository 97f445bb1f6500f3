package session

// Subscription is one stream channel and its payload (usually the pair symbols).
type Subscription struct {
	Channel string
	Payload []string
}

type subEntry struct {
	sub     Subscription
	status  SubStatus
	waiters []chan error
}

// subscriptions tracks per-channel acknowledgment state and the set of channels
// to reissue after a reconnect. Guarded by Session.mu.
type subscriptions struct {
	entries map[string]*subEntry
	order   []string // desired channels in first-subscribe order
}

func newSubscriptions() *subscriptions {
	return &subscriptions{entries: make(map[string]*subEntry)}
}

// request marks sub pending and returns a one-shot channel resolved by the
// matching ack, nack or failure.
func (s *subscriptions) request(sub Subscription) <-chan error {
	e, ok := s.entries[sub.Channel]
	if !ok {
		e = &subEntry{}
		s.entries[sub.Channel] = e
	}
	if !s.desired(sub.Channel) {
		s.order = append(s.order, sub.Channel)
	}
	e.sub = sub
	e.status = SubPending

	ch := make(chan error, 1)
	e.waiters = append(e.waiters, ch)
	return ch
}

// resolve settles a pending channel. A nil err acknowledges it; otherwise the
// channel is marked failed and is no longer reissued. It reports whether a
// pending entry existed.
func (s *subscriptions) resolve(channel string, err error) bool {
	e, ok := s.entries[channel]
	if !ok || e.status != SubPending {
		return false
	}
	if err == nil {
		e.status = SubAcknowledged
	} else {
		e.status = SubFailed
		s.dropDesired(channel)
	}
	for _, w := range e.waiters {
		w <- err
	}
	e.waiters = nil
	return true
}

func (s *subscriptions) pending(channel string) bool {
	e, ok := s.entries[channel]
	return ok && e.status == SubPending
}

// remove forgets channel entirely, failing any waiter with err.
func (s *subscriptions) remove(channel string, err error) {
	if e, ok := s.entries[channel]; ok {
		for _, w := range e.waiters {
			w <- err
		}
		delete(s.entries, channel)
	}
	s.dropDesired(channel)
}

// clear forgets every channel, failing waiters with err.
func (s *subscriptions) clear(err error) {
	for ch := range s.entries {
		s.remove(ch, err)
	}
	s.order = nil
}

// resetPending moves every desired channel back to pending after the transport dropped.
func (s *subscriptions) resetPending() {
	for _, ch := range s.order {
		if e, ok := s.entries[ch]; ok {
			e.status = SubPending
		}
	}
}

// desiredSubs returns the channels to reissue, in order.
func (s *subscriptions) desiredSubs() []Subscription {
	out := make([]Subscription, 0, len(s.order))
	for _, ch := range s.order {
		if e, ok := s.entries[ch]; ok {
			out = append(out, e.sub)
		}
	}
	return out
}

// allAcknowledged reports whether at least one channel is desired and all are acknowledged.
func (s *subscriptions) allAcknowledged() bool {
	if len(s.order) == 0 {
		return false
	}
	for _, ch := range s.order {
		e, ok := s.entries[ch]
		if !ok || e.status != SubAcknowledged {
			return false
		}
	}
	return true
}

func (s *subscriptions) snapshot() map[string]SubStatus {
	out := make(map[string]SubStatus, len(s.entries))
	for ch, e := range s.entries {
		out[ch] = e.status
	}
	return out
}

func (s *subscriptions) desired(channel string) bool {
	for _, ch := range s.order {
		if ch == channel {
			return true
		}
	}
	return false
}

func (s *subscriptions) dropDesired(channel string) {
	for i, ch := range s.order {
		if ch == channel {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
