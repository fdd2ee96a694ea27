package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"github.com/lib/pq"
)

var (
	ErrSubscriptionsDisabled = errors.New("postgres store: subscriptions need a listener DSN")
	errClosed                = errors.New("postgres store: closed")
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// subscription owns one LISTEN connection and a delivery goroutine.
type subscription struct {
	store    *Store
	listener *pq.Listener
	deliver  func(ctx context.Context)
	done     chan struct{}
	exited   chan struct{}
	once     sync.Once
}

func (s *Store) SubscribeSets(ctx context.Context, filter store.SetFilter, onChange func([]*models.Set)) (store.Subscription, error) {
	deliver := func(ctx context.Context) {
		sets, err := s.ListSets(ctx, filter)
		if err != nil {
			s.logger.Warn("subscription refresh failed", map[string]interface{}{
				"channel": setsChannel,
				"error":   err.Error(),
			})
			return
		}
		onChange(sets)
	}
	sub, err := s.subscribe(ctx, setsChannel, deliver)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Store) SubscribeProjects(ctx context.Context, filter store.ProjectFilter, onChange func([]*models.Project)) (store.Subscription, error) {
	deliver := func(ctx context.Context) {
		projects, err := s.ListProjects(ctx, filter)
		if err != nil {
			s.logger.Warn("subscription refresh failed", map[string]interface{}{
				"channel": projectsChannel,
				"error":   err.Error(),
			})
			return
		}
		onChange(projects)
	}
	sub, err := s.subscribe(ctx, projectsChannel, deliver)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Store) subscribe(ctx context.Context, channel string, deliver func(context.Context)) (*subscription, error) {
	if s.listenerDSN == "" {
		return nil, ErrSubscriptionsDisabled
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed
	}
	s.mu.Unlock()

	log := s.logger.WithFields(map[string]interface{}{"channel": channel})
	listener := pq.NewListener(s.listenerDSN, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn("listener event", map[string]interface{}{
					"event": int(ev),
					"error": err.Error(),
				})
			}
		})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, err
	}

	sub := &subscription{
		store:    s,
		listener: listener,
		deliver:  deliver,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return nil, errClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

func (sub *subscription) run(ctx context.Context) {
	defer close(sub.exited)
	defer sub.listener.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sub.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	sub.deliver(runCtx)
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.detach()
			return
		case <-sub.listener.Notify:
			// A nil notification follows a reconnect; refresh either way.
			sub.drain()
			sub.deliver(runCtx)
		case <-time.After(listenerPingInterval):
			go sub.listener.Ping()
		}
	}
}

// drain coalesces queued notifications into one refresh.
func (sub *subscription) drain() {
	for {
		select {
		case <-sub.listener.Notify:
		default:
			return
		}
	}
}

func (sub *subscription) Unsubscribe() {
	sub.detach()
	<-sub.exited
}

func (sub *subscription) detach() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
		close(sub.done)
	})
}
