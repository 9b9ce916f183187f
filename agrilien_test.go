package agrilien

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/config"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform/fake"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/netmon"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/services/dispatch"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
)

type AgentSuite struct {
	suite.Suite

	cfg    config.Config
	src    *netmon.ChanSource
	remote *fake.Client
	rec    *notify.Recorder
	agent  *Agent

	cancel context.CancelFunc
	done   chan error
}

func (s *AgentSuite) SetupTest() {
	s.cfg = config.Config{}
	s.cfg.Storage.DataDir = s.T().TempDir()
	s.src = netmon.NewChanSource(false)
	s.remote = fake.New()
	s.rec = notify.NewRecorder()

	agent, err := New(s.cfg, s.src, WithRemote(s.remote), WithNotifier(s.rec))
	s.Require().NoError(err)
	s.agent = agent

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- agent.Run(ctx) }()
}

func (s *AgentSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.done:
		s.Require().NoError(err)
	case <-time.After(2 * time.Second):
		s.T().Fatal("agent did not stop")
	}
	s.Require().NoError(s.agent.Close())
}

func (s *AgentSuite) declare(producer string) {
	outcome, err := s.agent.DeclareHarvest(context.Background(), models.HarvestInput{
		ProducerRef: producer,
		PlotRef:     "PLOT-001",
		Quantity:    decimal.RequireFromString("120.5"),
		CropType:    models.CropCacao,
		Unit:        models.UnitKilogram,
	})
	s.Require().NoError(err)
	if s.agent.Online() {
		s.Require().Equal(dispatch.OutcomeRemote, outcome)
	} else {
		s.Require().Equal(dispatch.OutcomeQueued, outcome)
	}
}

func (s *AgentSuite) waitPendingTotal(want int) {
	s.Require().Eventually(func() bool {
		return s.agent.Status().PendingTotal() == want
	}, 3*time.Second, 10*time.Millisecond)
}

func (s *AgentSuite) TestOfflineCaptureThenReconnectDrainsQueue() {
	s.declare("PROD-001")
	s.declare("PROD-002")
	_, err := s.agent.ScanBatch(context.Background(), "AGL-SAC-0042")
	s.Require().NoError(err)

	s.Require().Zero(s.remote.Harvests())
	s.waitPendingTotal(3)

	s.src.Set(true)

	s.waitPendingTotal(0)
	s.Require().Equal(2, s.remote.Harvests())
	s.Require().Equal(1, s.remote.Scans())

	s.Require().Eventually(func() bool {
		snap := s.agent.Status()
		return snap.LastMessageKind == notify.KindSyncCompleted
	}, 3*time.Second, 10*time.Millisecond)
	s.Require().Equal("3 éléments synchronisés avec succès !", s.agent.Status().LastMessage)
	s.Require().True(s.agent.Online())
}

func (s *AgentSuite) TestOnlineCaptureGoesStraightToRemote() {
	s.src.Set(true)
	s.Require().Eventually(s.agent.Online, 2*time.Second, 10*time.Millisecond)

	s.declare("PROD-010")

	s.Require().Equal(1, s.remote.Harvests())
	s.Require().Zero(s.agent.Status().PendingTotal())
}

func (s *AgentSuite) TestManualTriggerSweepsWhileOnline() {
	s.declare("PROD-020")
	s.waitPendingTotal(1)

	// Come up online with the remote rejecting, so the backlog stays put.
	s.remote.FailAll(fmt.Errorf("agrilien api http 503"))
	s.src.Set(true)
	s.Require().Eventually(s.agent.Online, 2*time.Second, 10*time.Millisecond)
	s.Require().Equal(1, s.agent.Status().PendingTotal())

	s.remote.FailAll(nil)
	s.agent.TriggerSync()

	// Manual triggers respect the retry window, so the record holds until
	// the window is re-opened by a connectivity edge.
	time.Sleep(50 * time.Millisecond)
	s.Require().Equal(1, s.agent.Status().PendingTotal())

	s.src.Set(false)
	s.Require().Eventually(func() bool { return !s.agent.Online() }, 2*time.Second, 10*time.Millisecond)
	s.src.Set(true)
	s.waitPendingTotal(0)
	s.Require().Equal(1, s.remote.Harvests())
}

func (s *AgentSuite) TestStatusSubscriptionSeesTransitions() {
	got := make(chan bool, 8)
	unsub := s.agent.SubscribeStatus(func(snap status.Snapshot) {
		select {
		case got <- snap.Online:
		default:
		}
	})
	defer unsub()

	s.src.Set(true)
	s.Require().Eventually(func() bool {
		for {
			select {
			case online := <-got:
				if online {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentSuite(t *testing.T) {
	suite.Run(t, new(AgentSuite))
}

func TestAgent_QueueSurvivesRestart(t *testing.T) {
	cfg := config.Config{}
	cfg.Storage.DataDir = t.TempDir()
	remote := fake.New()

	first, err := New(cfg, netmon.NewChanSource(false), WithRemote(remote))
	require.NoError(t, err)
	_, err = first.DeclareHarvest(context.Background(), models.HarvestInput{
		ProducerRef: "PROD-001",
		PlotRef:     "PLOT-001",
		Quantity:    decimal.RequireFromString("40"),
		CropType:    models.CropCafe,
		Unit:        models.UnitSack,
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Next session starts online: the leftover backlog is swept without any
	// connectivity edge.
	second, err := New(cfg, netmon.NewChanSource(true), WithRemote(remote))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- second.Run(ctx) }()

	require.Eventually(t, func() bool {
		harvests, scans, err := second.PendingCounts(context.Background())
		return err == nil && harvests == 0 && scans == 0
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, remote.Harvests())

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, second.Close())
}
