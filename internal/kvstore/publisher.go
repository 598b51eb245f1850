package kvstore

import "github.com/sirupsen/logrus"

// Publication is what local and global subscribers receive: a batch of
// key changes and/or expirations. One replication event fans out to
// every subscriber channel.
type Publication struct {
	Updated []MergeDelta
	Expired []Key
}

// Publisher fans Publications out to any number of subscribers. Local
// subscribers are in-process Go channels — modeled as a channel rather
// than a loopback network connection, since both ends are always in the
// same process. Global subscribers are registered the same way but are
// meant to be drained by a server-streaming Monitor RPC
// (internal/transport) that forwards each Publication to a remote
// watcher.
type Publisher struct {
	log         *logrus.Entry
	local       []chan Publication
	global      []chan Publication
}

// NewPublisher returns an empty publisher.
func NewPublisher(log *logrus.Entry) *Publisher {
	return &Publisher{log: log}
}

// SubscribeLocal registers a new local subscriber and returns the channel
// it will receive Publications on. The channel is buffered so a slow
// subscriber cannot stall the event loop; a full channel instead drops
// the oldest-undelivered Publication to make room (logging only if the
// new one still cannot be queued) — delivery is
// best-effort, and a subscriber that falls behind misses updates rather
// than blocking the node.
func (p *Publisher) SubscribeLocal(buffer int) <-chan Publication {
	ch := make(chan Publication, buffer)
	p.local = append(p.local, ch)
	return ch
}

// SubscribeGlobal registers a new global (remote-facing) subscriber.
func (p *Publisher) SubscribeGlobal(buffer int) <-chan Publication {
	ch := make(chan Publication, buffer)
	p.global = append(p.global, ch)
	return ch
}

// PublishLocal fans updated deltas out to every local subscriber.
func (p *Publisher) PublishLocal(deltas []MergeDelta) {
	p.publish(Publication{Updated: deltas})
}

// PublishExpired fans out a batch of TTL expirations.
func (p *Publisher) PublishExpired(keys []Key) {
	p.publish(Publication{Expired: keys})
}

func (p *Publisher) publish(pub Publication) {
	for _, subs := range [][]chan Publication{p.local, p.global} {
		for _, ch := range subs {
			select {
			case ch <- pub:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- pub:
				default:
					if p.log != nil {
						p.log.Warn("publisher: subscriber channel full, dropping publication")
					}
				}
			}
		}
	}
}
