package station_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-station/e2e/station/mockserver"
	"github.com/rxtech-lab/argo-station/internal/logger"
	"github.com/rxtech-lab/argo-station/internal/station"
	"github.com/rxtech-lab/argo-station/internal/types"
)

type StationE2ETestSuite struct {
	suite.Suite
	server  *mockserver.MockBackendServer
	station *station.Station
	cancel  context.CancelFunc
	done    chan error
}

func TestStationE2ESuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e tests in short mode")
	}

	suite.Run(t, new(StationE2ETestSuite))
}

func (s *StationE2ETestSuite) SetupTest() {
	s.server = mockserver.NewMockBackendServer(mockserver.ServerConfig{
		HeartbeatInterval: 50 * time.Millisecond,
		StreamInterval:    20 * time.Millisecond,
		InitialPrices: map[string]string{
			"BTC-USD": "42300.5",
			"ETH-USD": "3100.25",
		},
	})
	s.Require().NoError(s.server.Start(""))

	config := station.Config{
		URL:               s.server.WebSocketURL(),
		Subscriptions:     []string{"BTC-USD"},
		HeartbeatInterval: "50ms",
		BackoffBase:       "10ms",
		BackoffCap:        "100ms",
	}

	log := logger.NewNopLogger()

	st, err := station.NewStation(config, log)
	s.Require().NoError(err)
	s.station = st

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)

	go func() {
		s.done <- st.Run(ctx, station.Callbacks{})
	}()
}

func (s *StationE2ETestSuite) TearDownTest() {
	s.cancel()

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.Fail("station did not stop")
	}

	_ = s.server.Stop()
}

func (s *StationE2ETestSuite) waitForLiveSnapshot() *types.ViewSnapshot {
	var snapshot *types.ViewSnapshot

	s.Require().Eventually(func() bool {
		snapshot = s.station.Bridge().LatestSnapshot()

		_, ok := snapshot.Entity("BTC-USD")

		return ok && !snapshot.Stale
	}, 5*time.Second, 10*time.Millisecond)

	return snapshot
}

func (s *StationE2ETestSuite) TestConnectAndStream() {
	first := s.waitForLiveSnapshot()

	entity, ok := first.Entity("BTC-USD")
	s.Require().True(ok)
	s.Equal(types.EntityKindInstrument, entity.Kind)
	s.Equal(types.EntityStatusActive, entity.Status)

	// Prices keep advancing while subscribed.
	s.Require().Eventually(func() bool {
		snapshot := s.station.Bridge().LatestSnapshot()

		current, ok := snapshot.Entity("BTC-USD")

		return ok && current.Price.GreaterThan(entity.Price) && snapshot.Sequence > first.Sequence
	}, 5*time.Second, 10*time.Millisecond)

	// ETH-USD was never subscribed.
	_, ok = s.station.Bridge().LatestSnapshot().Entity("ETH-USD")
	s.False(ok)
}

func (s *StationE2ETestSuite) TestStalenessAcrossReconnect() {
	s.waitForLiveSnapshot()

	s.server.DisconnectAll()

	s.Require().Eventually(func() bool {
		return s.station.Bridge().LatestSnapshot().Stale
	}, 5*time.Second, 10*time.Millisecond)

	// Last known data survives the disconnect.
	_, ok := s.station.Bridge().LatestSnapshot().Entity("BTC-USD")
	s.True(ok)

	// The server is still up, so the station reconnects and resubscribes
	// on its own.
	s.Require().Eventually(func() bool {
		return !s.station.Bridge().LatestSnapshot().Stale
	}, 5*time.Second, 10*time.Millisecond)

	s.GreaterOrEqual(s.server.SubscribeCount(), 2)
}

func (s *StationE2ETestSuite) TestHeartbeatLossForcesReconnect() {
	s.waitForLiveSnapshot()

	before := s.server.SubscribeCount()
	s.server.PauseHeartbeats()

	// Price updates keep flowing, but heartbeat silence alone must force
	// a reconnect.
	s.Require().Eventually(func() bool {
		return s.server.SubscribeCount() > before
	}, 5*time.Second, 10*time.Millisecond)

	s.server.ResumeHeartbeats()
	s.waitForLiveSnapshot()
}

func (s *StationE2ETestSuite) TestSchemaMismatchForcesReconnect() {
	s.waitForLiveSnapshot()

	before := s.server.SubscribeCount()
	s.server.SendRaw(`{"v":2,"type":"entity","id":"BTC-USD","price":"1"}`)

	s.Require().Eventually(func() bool {
		return s.server.SubscribeCount() > before
	}, 5*time.Second, 10*time.Millisecond)

	s.waitForLiveSnapshot()
}

func (s *StationE2ETestSuite) TestMalformedFrameIsIgnored() {
	s.waitForLiveSnapshot()

	before := s.server.SubscribeCount()
	s.server.SendRaw(`{not json at all`)

	// Still streaming on the same connection.
	snapshot := s.station.Bridge().LatestSnapshot()
	s.Require().Eventually(func() bool {
		return s.station.Bridge().LatestSnapshot().Sequence > snapshot.Sequence
	}, 5*time.Second, 10*time.Millisecond)

	s.Equal(before, s.server.SubscribeCount())
}

func (s *StationE2ETestSuite) TestCommandsReachBackend() {
	s.waitForLiveSnapshot()

	s.True(s.station.Bridge().Subscribe([]string{"ETH-USD"}))

	s.Require().Eventually(func() bool {
		_, ok := s.station.Bridge().LatestSnapshot().Entity("ETH-USD")

		return ok
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := s.station.Bridge().Ping()
	s.True(ok)

	s.Require().Eventually(func() bool {
		return s.server.PingCount() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	s.True(s.station.Bridge().Unsubscribe([]string{"ETH-USD"}))

	s.Require().Eventually(func() bool {
		return s.server.UnsubscribeCount() >= 1
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *StationE2ETestSuite) TestNoticeAppearsInSnapshot() {
	s.waitForLiveSnapshot()

	s.server.SendNotice("warning", "maintenance window in 5 minutes")

	s.Require().Eventually(func() bool {
		for _, n := range s.station.Bridge().LatestSnapshot().Notices {
			if n.Message == "maintenance window in 5 minutes" && n.Level == types.NoticeLevelWarning {
				return true
			}
		}

		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *StationE2ETestSuite) TestEntityRemoval() {
	s.waitForLiveSnapshot()

	s.server.RemoveEntity("BTC-USD")

	s.Require().Eventually(func() bool {
		_, ok := s.station.Bridge().LatestSnapshot().Entity("BTC-USD")

		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}
