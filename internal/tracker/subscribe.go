package tracker

// subscriber holds the latest undelivered snapshot for one consumer.
type subscriber struct {
	ch chan Snapshot
}

// offer replaces any undelivered snapshot with snap. Callers hold the
// tracker lock, so they are the only sender and the final send cannot block.
func (s *subscriber) offer(snap Snapshot) {
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}

// Subscribe returns a channel that receives the current snapshot
// immediately and then every state change. A slow consumer may miss
// intermediate snapshots but always receives the most recent one, so the
// terminal snapshot is the last one delivered for a job. The returned
// function unsubscribes and closes the channel; Close does the same for
// every subscriber.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if t.closed {
		ch <- t.snapshotLocked()
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	sub := &subscriber{ch: ch}
	t.subs[id] = sub
	sub.offer(t.snapshotLocked())

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
}

func (t *Tracker) publishLocked() {
	if len(t.subs) == 0 {
		return
	}
	snap := t.snapshotLocked()
	for _, s := range t.subs {
		s.offer(snap)
	}
}
