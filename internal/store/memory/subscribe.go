package memory

import (
	"context"
	"errors"
	"sync"

	"ambient-pro/internal/models"
	"ambient-pro/internal/store"
)

var errClosed = errors.New("memory store: closed")

// subscription delivers snapshots from a single goroutine. Change signals
// coalesce in a one-slot channel, so a slow callback sees the latest state
// rather than every intermediate one.
type subscription struct {
	id      int64
	kind    collection
	deliver func()
	notify  chan struct{}
	done    chan struct{}
	exited  chan struct{}
	once    sync.Once
	store   *Store
}

func (s *Store) SubscribeSets(ctx context.Context, filter store.SetFilter, onChange func([]*models.Set)) (store.Subscription, error) {
	deliver := func() {
		s.mu.RLock()
		snapshot := s.listSetsLocked(filter)
		s.mu.RUnlock()
		onChange(snapshot)
	}
	sub, err := s.subscribe(ctx, collectionSets, deliver)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Store) SubscribeProjects(ctx context.Context, filter store.ProjectFilter, onChange func([]*models.Project)) (store.Subscription, error) {
	deliver := func() {
		s.mu.RLock()
		snapshot := s.listProjectsLocked(filter)
		s.mu.RUnlock()
		onChange(snapshot)
	}
	sub, err := s.subscribe(ctx, collectionProjects, deliver)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Store) subscribe(ctx context.Context, kind collection, deliver func()) (*subscription, error) {
	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		return nil, errClosed
	}
	s.nextSub++
	sub := &subscription{
		id:      s.nextSub,
		kind:    kind,
		deliver: deliver,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		store:   s,
	}
	s.subs[sub.id] = sub
	s.subsMu.Unlock()

	// Initial snapshot.
	sub.notify <- struct{}{}
	go sub.run(ctx)
	return sub, nil
}

func (sub *subscription) run(ctx context.Context) {
	defer close(sub.exited)
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.detach()
			return
		case <-sub.notify:
			select {
			case <-sub.done:
				return
			default:
			}
			sub.deliver()
		}
	}
}

// Unsubscribe stops delivery and waits for an in-flight callback to return.
func (sub *subscription) Unsubscribe() {
	sub.detach()
	<-sub.exited
}

func (sub *subscription) detach() {
	sub.once.Do(func() {
		sub.store.subsMu.Lock()
		delete(sub.store.subs, sub.id)
		sub.store.subsMu.Unlock()
		close(sub.done)
	})
}

func (s *Store) publish(kind collection) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		if sub.kind != kind {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}
