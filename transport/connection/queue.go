package connection

import "github.com/sagernet/sing-reactor/common/x/list"

// outboundQueue holds one FIFO per priority. At most one chunk is partially
// sent; it is always resumed before anything else.
type outboundQueue struct {
	levels  [priorityLevels]list.List[[]byte]
	started bool
	partial Priority
	offset  int
	chunks  int
	bytes   int
}

func (q *outboundQueue) push(priority Priority, chunk []byte) {
	q.levels[priority].PushBack(chunk)
	q.chunks++
	q.bytes += len(chunk)
}

func (q *outboundQueue) empty() bool {
	return q.chunks == 0
}

func (q *outboundQueue) front() (Priority, []byte, bool) {
	if q.started {
		return q.partial, q.levels[q.partial].Front().Value[q.offset:], true
	}
	for priority := PriorityHighest; priority >= PriorityLowest; priority-- {
		if element := q.levels[priority].Front(); element != nil {
			return priority, element.Value, true
		}
	}
	return 0, nil, false
}

// advance accounts n bytes sent from the front chunk of priority and reports
// whether that chunk is complete.
func (q *outboundQueue) advance(priority Priority, n int) bool {
	level := &q.levels[priority]
	chunk := level.Front().Value
	offset := n
	if q.started {
		offset += q.offset
	}
	q.bytes -= n
	if offset >= len(chunk) {
		level.PopFront()
		q.chunks--
		q.started = false
		q.offset = 0
		return true
	}
	q.started = true
	q.partial = priority
	q.offset = offset
	return false
}

func (q *outboundQueue) clear(priority Priority) {
	level := &q.levels[priority]
	var keep *list.Element[[]byte]
	start := level.Front()
	if q.started && q.partial == priority {
		keep = start
		start = start.Next()
	}
	for element := start; element != nil; element = element.Next() {
		q.chunks--
		q.bytes -= len(element.Value)
	}
	level.RemoveAfter(keep)
}

func (q *outboundQueue) reset() {
	for index := range q.levels {
		q.levels[index].Init()
	}
	q.started = false
	q.offset = 0
	q.chunks = 0
	q.bytes = 0
}
