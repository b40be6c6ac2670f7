package sched

import "github.com/joshuapare/rvoskit/kernel/mem"

// insert places t between the ring head's predecessor and the head and makes
// t the new head. On an empty ring t links to itself.
func (s *Scheduler) insert(t *Task) {
	head := s.heads[t.priority]
	if head.IsNull() {
		t.setFront(t.id)
		t.setNext(t.id)
		s.heads[t.priority] = t.id
		return
	}

	first := s.tasks[head]
	last := s.tasks[first.front()]
	t.setFront(last.id)
	t.setNext(first.id)
	last.setNext(t.id)
	first.setFront(t.id)
	s.heads[t.priority] = t.id
}

// unlink removes t from its ring. A sole member empties the ring; a head
// passes the entry point to its successor.
func (s *Scheduler) unlink(t *Task) {
	if t.next() == t.id {
		s.heads[t.priority] = mem.Null
		return
	}
	if s.heads[t.priority] == t.id {
		s.heads[t.priority] = t.next()
	}
	prev := s.tasks[t.front()]
	next := s.tasks[t.next()]
	prev.setNext(next.id)
	next.setFront(prev.id)
}
