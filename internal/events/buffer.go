package events

import "sync"

type message struct {
	Kind string
	Data []byte
	next *message
}

// buffer is an unbounded FIFO of pending messages.
type buffer struct {
	lock sync.Mutex
	head *message
	tail *message
	size int
}

func newBuffer() *buffer {
	return &buffer{}
}

func (b *buffer) PushBack(msg *message) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.tail == nil {
		b.head = msg
	} else {
		b.tail.next = msg
	}
	b.tail = msg
	b.size++
}

func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == nil {
		return nil
	}
	msg := b.head
	b.head = msg.next
	if b.head == nil {
		b.tail = nil
	}
	msg.next = nil
	b.size--
	return msg
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}
