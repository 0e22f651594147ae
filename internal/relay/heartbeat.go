package relay

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// HeartbeatTicker periodically pings every live agent and closes any that
// have missed too many consecutive pongs (§4.8).
type HeartbeatTicker struct {
	cron    gocron.Scheduler
	tables  *RoutingTables
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
}

// NewHeartbeatTicker builds a HeartbeatTicker. Call Start to begin ticking.
func NewHeartbeatTicker(cfg Config, tables *RoutingTables, logger *zap.Logger, metrics *Metrics) (*HeartbeatTicker, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create heartbeat scheduler: %w", err)
	}

	return &HeartbeatTicker{
		cron:    s,
		tables:  tables,
		cfg:     cfg,
		logger:  logger.Named("relay.heartbeat"),
		metrics: metrics,
	}, nil
}

// Start schedules the periodic tick and starts the underlying gocron
// scheduler.
func (h *HeartbeatTicker) Start() error {
	_, err := h.cron.NewJob(
		gocron.DurationJob(h.cfg.HeartbeatPeriod),
		gocron.NewTask(h.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("relay: failed to schedule heartbeat job: %w", err)
	}
	h.cron.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for any in-flight tick to finish.
func (h *HeartbeatTicker) Stop() error {
	return h.cron.Shutdown()
}

// tick pings every live agent and closes any that have been silent since
// before the missed-tick deadline. The cutoff uses HeartbeatMaxMissedTicks-1
// periods, not HeartbeatMaxMissedTicks: an agent last seen exactly at the
// most recent tick has missed zero pongs, so the Nth consecutive silent
// tick (not the N+1th) is what should close it.
func (h *HeartbeatTicker) tick() {
	deadline := time.Now().Add(-time.Duration(h.cfg.HeartbeatMaxMissedTicks-1) * h.cfg.HeartbeatPeriod)

	for _, rec := range h.tables.AllAgents() {
		if rec.session.LastSeen().Before(deadline) {
			h.logger.Info("agent missed heartbeat, closing",
				zap.String("user_id", rec.OwningUserID),
				zap.String("agent_id", rec.AgentID),
			)
			if h.metrics != nil {
				h.metrics.heartbeatMisses.Inc()
			}
			rec.session.Close()
			continue
		}
		rec.session.SendPing()
	}
}
