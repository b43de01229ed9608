// Package station assembles the ingest pipeline: one connection manager
// feeding one aggregator, exposed to the render side through a bridge.
package station

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-station/internal/logger"
	"github.com/rxtech-lab/argo-station/internal/station/bridge"
	"github.com/rxtech-lab/argo-station/internal/station/conn"
	"github.com/rxtech-lab/argo-station/internal/station/view"
	"github.com/rxtech-lab/argo-station/internal/types"
	"github.com/rxtech-lab/argo-station/pkg/errors"
)

// Verify the pipeline pieces plug into each other.
var (
	_ view.EventSource      = (*conn.EventQueue)(nil)
	_ bridge.SnapshotSource = (*view.Aggregator)(nil)
	_ bridge.CommandSink    = (*conn.Manager)(nil)
)

// Station owns the background pipeline between one backend connection and
// the render bridge. Create with NewStation, then Run blocks until the
// context is cancelled.
type Station struct {
	config     Config
	log        *logger.Logger
	manager    *conn.Manager
	aggregator *view.Aggregator
	bridge     *bridge.Bridge

	running atomic.Bool
}

// NewStation validates the config and wires the pipeline. Nothing runs
// until Run is called.
func NewStation(config Config, log *logger.Logger) (*Station, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	manager := conn.NewManager(config.ConnConfig(), log)
	aggregator := view.NewAggregator(manager.Queue(), log)

	return &Station{
		config:     config,
		log:        log,
		manager:    manager,
		aggregator: aggregator,
		bridge:     bridge.NewBridge(aggregator, manager, log),
	}, nil
}

// newStationWithDialer wires the pipeline over an injected dialer. Test
// hook; production goes through NewStation.
func newStationWithDialer(config Config, dialer conn.Dialer, log *logger.Logger) (*Station, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	manager := conn.NewManagerWithDialer(config.ConnConfig(), dialer, log)
	aggregator := view.NewAggregator(manager.Queue(), log)

	return &Station{
		config:     config,
		log:        log,
		manager:    manager,
		aggregator: aggregator,
		bridge:     bridge.NewBridge(aggregator, manager, log),
	}, nil
}

// Bridge returns the render-side doorway. Valid before Run; reads serve
// the bootstrap snapshot until the pipeline starts.
func (s *Station) Bridge() *bridge.Bridge {
	return s.bridge
}

// Run starts the connection manager and aggregator and blocks until ctx is
// cancelled. Transport failures never propagate out of Run; the only error
// besides callback wiring is a double start.
func (s *Station) Run(ctx context.Context, callbacks Callbacks) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New(errors.ErrCodeAlreadyRunning, "station is already running")
	}
	defer s.running.Store(false)

	var runErr error

	defer func() {
		if callbacks.OnStationStop != nil {
			(*callbacks.OnStationStop)(runErr)
		}
	}()

	if callbacks.OnStationStart != nil {
		if err := (*callbacks.OnStationStart)(); err != nil {
			runErr = errors.Wrap(errors.ErrCodeCallbackFailed, "start callback failed", err)

			return runErr
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := s.manager.Run(runCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			s.log.Error("Connection manager stopped", zap.Error(err))
		}
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := s.aggregator.Run(runCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			s.log.Error("Aggregator stopped", zap.Error(err))
		}
	}()

	if callbacks.OnSnapshot != nil || callbacks.OnConnectionChange != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()
			s.monitor(runCtx, callbacks)
		}()
	}

	s.log.Info("Station running",
		zap.String("url", s.config.URL),
		zap.Strings("subscriptions", s.config.Subscriptions),
	)

	<-ctx.Done()
	cancel()
	wg.Wait()

	s.log.Info("Station stopped")

	return nil
}

// monitor consumes the aggregator's dirty signal and fans publications out
// to the lifecycle callbacks. Callback errors are reported through OnError
// and never stop the pipeline.
func (s *Station) monitor(ctx context.Context, callbacks Callbacks) {
	lastStatus := types.ConnectionStatus{State: types.ConnStateDisconnected}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.aggregator.Dirty():
		}

		snapshot := s.aggregator.Latest()

		if callbacks.OnSnapshot != nil {
			if err := (*callbacks.OnSnapshot)(snapshot); err != nil {
				s.reportCallbackError(callbacks, err)
			}
		}

		if callbacks.OnConnectionChange != nil && snapshot.ConnStatus != lastStatus {
			lastStatus = snapshot.ConnStatus

			if err := (*callbacks.OnConnectionChange)(snapshot.ConnStatus); err != nil {
				s.reportCallbackError(callbacks, err)
			}
		}
	}
}

func (s *Station) reportCallbackError(callbacks Callbacks, err error) {
	wrapped := errors.Wrap(errors.ErrCodeCallbackFailed, "callback failed", err)

	s.log.Warn("Callback failed", zap.Error(err))

	if callbacks.OnError != nil {
		(*callbacks.OnError)(wrapped)
	}
}
