package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evalgo-forge/ecsreplica/boltstore"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/engineconfig"
	"github.com/evalgo-forge/ecsreplica/enginelog"
	"github.com/evalgo-forge/ecsreplica/history"
	"github.com/evalgo-forge/ecsreplica/reconcile"
	"github.com/evalgo-forge/ecsreplica/replication"
	"github.com/evalgo-forge/ecsreplica/schedule"
	"github.com/evalgo-forge/ecsreplica/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this peer's world and tick loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

// Host bundles everything one running peer owns: the world, its history
// window, the reconciler, and the optional bus and durable store.
type Host struct {
	Config     engineconfig.Config
	World      *ecsworld.World
	Schedule   *schedule.Schedule
	History    *history.History
	Reconciler *reconcile.Reconciler
	Bus        transport.TransactionBus
	Store      *boltstore.CheckpointStore

	log *enginelog.ContextLogger
}

// NewHost assembles a host from a validated configuration. The schedule
// starts empty; embedding callers add their systems before Run.
func NewHost(cfg engineconfig.Config) (*Host, error) {
	enginelog.Configure(cfg.LogLevel, cfg.LogFormat)
	log := enginelog.EngineLogger(cfg.DomainID)

	w := ecsworld.NewWorld(ecsentity.DomainID(cfg.DomainID))
	sched := schedule.NewSchedule()

	var store *boltstore.CheckpointStore
	if cfg.BoltPath != "" {
		var err error
		store, err = boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
	}

	histCfg := history.Config{
		MaxTicks:           cfg.HistoryMaxTicks,
		CheckpointInterval: cfg.CheckpointInterval,
	}
	if store != nil {
		histCfg.Store = store
	}
	hist := history.New(histCfg)

	queue := reconcile.NewRemoteQueue()
	rec := reconcile.NewReconciler(queue, hist, sched, replication.ApplyOptions{Log: log}, uint64(cfg.GhostCleanupWindow))

	return &Host{
		Config:     cfg,
		World:      w,
		Schedule:   sched,
		History:    hist,
		Reconciler: rec,
		Store:      store,
		log:        log,
	}, nil
}

// ConnectBus attaches the redis transaction bus and starts feeding the
// remote queue from every domain but this host's own.
func (h *Host) ConnectBus(ctx context.Context, domains []ecsentity.DomainID) error {
	bus, err := transport.NewRedisTransactionBus(ctx, h.World.Registry, transport.Config{RedisURL: h.Config.RedisURL})
	if err != nil {
		return err
	}
	h.Bus = bus

	inbound, err := bus.Subscribe(ctx, domains)
	if err != nil {
		bus.Close()
		h.Bus = nil
		return err
	}
	go func() {
		for tx := range inbound {
			if tx.DomainID == ecsentity.DomainID(h.Config.DomainID) {
				continue
			}
			h.Reconciler.Queue.Push(tx)
		}
	}()
	return nil
}

// Tick runs one full frame: batch reconciliation of late arrivals, the
// schedule, history bookkeeping, ghost cleanup, command teardown, and the
// commit + publish of this tick's transaction.
func (h *Host) Tick(ctx context.Context) {
	w := h.World

	h.Reconciler.PerformBatchReconciliation(w)
	h.History.BeginTick(w)
	h.Reconciler.ApplyForCurrentTick(w)

	h.Schedule.RunTick(w)

	reconcile.CleanupCommandEntities(w)
	h.Reconciler.GhostSweep(w)

	tx := w.CommitTransaction(w.Entities.NextOpSeq(), h.Config.VersionedWrites)
	if len(tx.Ops) > 0 && h.Bus != nil {
		if err := h.Bus.Publish(ctx, tx); err != nil {
			h.log.WithError(err).WithFields(enginelog.FieldsForTx(tx)).Warn("failed to publish transaction")
		}
	}

	h.History.EndTick(w)
	w.AdvanceTick()
}

// Run drives the tick loop at the configured rate until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	interval := time.Second / time.Duration(h.Config.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.log.WithFields(map[string]interface{}{
		"tick_rate_hz": h.Config.TickRateHz,
		"tick":         h.World.Tick(),
	}).Info("tick loop started")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("tick loop stopped")
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Close releases the host's external resources.
func (h *Host) Close() {
	if h.Bus != nil {
		h.Bus.Close()
	}
	if h.Store != nil {
		h.Store.Close()
	}
}

func runServe(cfg engineconfig.Config) error {
	host, err := NewHost(cfg)
	if err != nil {
		return err
	}
	defer host.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if seeded, err := host.History.SeedFromStore(host.World); err != nil {
		host.log.WithError(err).Warn("failed to seed from durable checkpoint; starting empty")
	} else if seeded {
		host.log.WithField("tick", host.World.Tick()).Info("resumed from durable checkpoint")
	}

	if cfg.RedisURL != "" {
		// Track every peer-owned domain except our own.
		domains := make([]ecsentity.DomainID, 0)
		for d := ecsentity.DomainID(0); d < ecsentity.TransientDomain; d++ {
			if d != ecsentity.DomainID(cfg.DomainID) {
				domains = append(domains, d)
			}
			if len(domains) >= 16 {
				break // subscribing to every possible domain is wasteful; hosts with more peers configure explicitly
			}
		}
		if err := host.ConnectBus(ctx, domains); err != nil {
			return err
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	host.Run(ctx)
	return nil
}
