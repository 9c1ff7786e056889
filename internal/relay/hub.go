package relay

import (
	"math/rand"
	"sync"
)

// maxFlushSteps bounds Flush against endless ping-pong between faulty peers.
const maxFlushSteps = 1 << 20

// Faults configures lossy delivery on a Hub.
type Faults struct {
	Drop      float64
	Duplicate float64
	Shuffle   bool
}

type delivery struct {
	to      *MemoryChannel
	payload []byte
}

// Hub is an in-process relay. Sends are queued and delivered by Flush, which
// makes delivery order, loss and duplication controllable.
type Hub struct {
	mu       sync.Mutex
	channels map[string][]*MemoryChannel
	queue    []delivery
	faults   Faults
	rnd      *rand.Rand
}

// NewHub creates a hub with reliable in-order delivery.
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string][]*MemoryChannel),
		rnd:      rand.New(rand.NewSource(1)),
	}
}

// SetFaults switches fault injection; rnd drives every random choice.
func (h *Hub) SetFaults(f Faults, rnd *rand.Rand) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = f
	if rnd != nil {
		h.rnd = rnd
	}
}

// Channel returns a new unsubscribed endpoint on the named channel.
func (h *Hub) Channel(name string) *MemoryChannel {
	return &MemoryChannel{hub: h, name: name}
}

// Pending returns the number of queued deliveries.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Flush delivers queued payloads, including those sent while flushing,
// until the queue is empty. It returns the number of deliveries made.
func (h *Hub) Flush() int {
	delivered := 0
	for step := 0; step < maxFlushSteps; step++ {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return delivered
		}
		i := 0
		if h.faults.Shuffle {
			i = h.rnd.Intn(len(h.queue))
		}
		d := h.queue[i]
		h.queue = append(h.queue[:i], h.queue[i+1:]...)
		h.mu.Unlock()

		if d.to.deliver(d.payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) join(c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[c.name] = append(h.channels[c.name], c)
}

func (h *Hub) leave(c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.channels[c.name]
	for i, m := range members {
		if m == c {
			h.channels[c.name] = append(members[:i], members[i+1:]...)
			break
		}
	}
}

func (h *Hub) broadcast(from *MemoryChannel, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.channels[from.name] {
		if m == from {
			continue
		}
		if h.faults.Drop > 0 && h.rnd.Float64() < h.faults.Drop {
			continue
		}
		copies := 1
		if h.faults.Duplicate > 0 && h.rnd.Float64() < h.faults.Duplicate {
			copies = 2
		}
		for i := 0; i < copies; i++ {
			h.queue = append(h.queue, delivery{to: m, payload: append([]byte(nil), payload...)})
		}
	}
}

// MemoryChannel is one subscriber endpoint of a Hub.
type MemoryChannel struct {
	hub  *Hub
	name string

	mu         sync.Mutex
	subscribed bool
	onMessage  MessageHandler
	onStatus   StatusHandler
}

// Subscribe joins the hub and reports StatusSubscribed synchronously.
func (c *MemoryChannel) Subscribe(onMessage MessageHandler, onStatus StatusHandler) error {
	c.mu.Lock()
	if c.onMessage != nil {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	c.onMessage, c.onStatus = onMessage, onStatus
	c.mu.Unlock()
	c.attach()
	return nil
}

// Send queues payload for every other subscriber.
func (c *MemoryChannel) Send(payload []byte) error {
	c.mu.Lock()
	subscribed := c.subscribed
	c.mu.Unlock()
	if !subscribed {
		return ErrNotSubscribed
	}
	c.hub.broadcast(c, payload)
	return nil
}

// Unsubscribe leaves the hub and reports StatusClosed.
func (c *MemoryChannel) Unsubscribe() error {
	c.mu.Lock()
	onStatus := c.onStatus
	wasSubscribed := c.subscribed
	c.subscribed = false
	c.onMessage, c.onStatus = nil, nil
	c.mu.Unlock()

	if wasSubscribed {
		c.hub.leave(c)
	}
	if onStatus != nil {
		onStatus(StatusClosed, nil)
	}
	return nil
}

// Interrupt simulates a dropped connection: the endpoint leaves the hub and
// reports StatusChannelError, keeping its handlers for Restore.
func (c *MemoryChannel) Interrupt(err error) {
	c.mu.Lock()
	onStatus := c.onStatus
	wasSubscribed := c.subscribed
	c.subscribed = false
	c.mu.Unlock()

	if !wasSubscribed {
		return
	}
	c.hub.leave(c)
	if onStatus != nil {
		onStatus(StatusChannelError, err)
	}
}

// Restore rejoins after Interrupt and reports StatusSubscribed again.
func (c *MemoryChannel) Restore() {
	c.attach()
}

func (c *MemoryChannel) attach() {
	c.mu.Lock()
	if c.subscribed || c.onMessage == nil {
		c.mu.Unlock()
		return
	}
	c.subscribed = true
	onStatus := c.onStatus
	c.mu.Unlock()

	c.hub.join(c)
	if onStatus != nil {
		onStatus(StatusSubscribed, nil)
	}
}

func (c *MemoryChannel) deliver(payload []byte) bool {
	c.mu.Lock()
	onMessage := c.onMessage
	subscribed := c.subscribed
	c.mu.Unlock()
	if !subscribed || onMessage == nil {
		return false
	}
	onMessage(payload)
	return true
}
