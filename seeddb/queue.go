/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package seeddb

import (
	"container/heap"
	"time"
)

// dueEntry is one item in a dueQueue: a peer id and the time it becomes
// eligible for probing.
type dueEntry struct {
	id  PeerId
	due time.Time
}

// dueQueue is a min-heap over due time, backing both the "unknown" and
// "tracked" scheduler queues from spec.md §4.1. Queues hold ids, never
// owning pointers (SPEC_FULL.md §9 / spec.md §9 design note on cyclic
// references).
type dueQueue []dueEntry

func (q dueQueue) Len() int            { return len(q) }
func (q dueQueue) Less(i, j int) bool  { return q[i].due.Before(q[j].due) }
func (q dueQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *dueQueue) Push(x interface{}) { *q = append(*q, x.(dueEntry)) }
func (q *dueQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func newDueQueue() *dueQueue {
	q := &dueQueue{}
	heap.Init(q)
	return q
}

func (q *dueQueue) push(id PeerId, due time.Time) {
	heap.Push(q, dueEntry{id: id, due: due})
}

// peekDue returns the earliest due time in the queue without popping,
// and false if the queue is empty.
func (q *dueQueue) peekDue() (time.Time, bool) {
	if q.Len() == 0 {
		return time.Time{}, false
	}
	return (*q)[0].due, true
}

// popIfDue pops and returns the earliest entry iff its due time is <= now.
func (q *dueQueue) popIfDue(now time.Time) (PeerId, bool) {
	if q.Len() == 0 {
		return 0, false
	}
	if (*q)[0].due.After(now) {
		return 0, false
	}
	e := heap.Pop(q).(dueEntry)
	return e.id, true
}
