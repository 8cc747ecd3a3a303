package actor

// commandQueue is a FIFO of pending commands. It is not synchronized; the
// actor guards it with its mutex.
type commandQueue struct {
	items []*Command
	head  int
}

func (q *commandQueue) push(cmd *Command) {
	q.items = append(q.items, cmd)
}

func (q *commandQueue) pop() *Command {
	if q.head >= len(q.items) {
		return nil
	}
	cmd := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return cmd
}

func (q *commandQueue) len() int {
	return len(q.items) - q.head
}

// drain empties the queue and returns what was in it, oldest first.
func (q *commandQueue) drain() []*Command {
	pending := append([]*Command(nil), q.items[q.head:]...)
	q.items = nil
	q.head = 0
	return pending
}
