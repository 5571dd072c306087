package state

import (
	"sync"
)

// Listener は状態遷移の通知を受け取る関数。
// Dispatchの処理中に同期的に呼ばれるため、Listener内でDispatchを呼んではならない。
type Listener func(prev, next State, action Action)

// Store はアプリケーション状態を保持し、Dispatchを直列化する。
// 全ての遷移は1本の論理スレッド上で順番に適用される。
type Store struct {
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners map[uint64]Listener
	nextID    uint64
}

// NewStore は初期状態を持つStoreを生成する。
func NewStore(initial State) *Store {
	return &Store{
		state:     initial,
		listeners: make(map[uint64]Listener),
	}
}

// State は現在の状態を返す。
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch はアクションを適用し、状態が変化した場合にListenerへ通知する。
func (s *Store) Dispatch(a Action) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if next.Version == prev.Version {
		return
	}

	for _, l := range listeners {
		l(prev, next, a)
	}
}

// Subscribe はListenerを登録し、登録解除関数を返す。
// 登録解除関数は複数回呼んでも安全。
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
