package sweeper

import (
	"context"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/lamstech/quickcards/pkg/prom"
)

// Clock abstracts time so sweeps can be tested at fixed instants.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type InventoryStore interface {
	Release(ctx context.Context, token string) error
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

type TransactionStore interface {
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error)
	Transition(ctx context.Context, id int64, to model.TransactionStatus) error
}

type ReferenceStore interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

type CheckerStore interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// Locker is the distributed lock that keeps concurrent sweeper instances
// from double-running a cycle.
type Locker interface {
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Del(key string) error
}

type Config struct {
	// Interval between sweep cycles.
	Interval time.Duration
	// StaleClaimAge is how long a claim may sit before the safety net
	// returns it to the pool. It must exceed the payment window plus the
	// poll timeout, or the sweep could steal items from a live purchase.
	StaleClaimAge time.Duration
	// BatchSize caps expired transactions handled per cycle.
	BatchSize int
	LockKey   string
	LockTTL   time.Duration
}

func (c *Config) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleClaimAge <= 0 {
		c.StaleClaimAge = 15 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.LockKey == "" {
		c.LockKey = "quickcards:sweeper:lock"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
}

// Result is one cycle's tally.
type Result struct {
	ExpiredTransactions int64 `json:"expired_transactions"`
	ReleasedClaims      int64 `json:"released_claims"`
	StaleClaimsReleased int64 `json:"stale_claims_released"`
	ExpiredInventory    int64 `json:"expired_inventory"`
	ExpiredReferences   int64 `json:"expired_references"`
	ExpiredCheckers     int64 `json:"expired_checkers"`
}

// Sweeper expires overdue records and returns their inventory to the pool:
// transactions past their payment window, claims orphaned by crashes, and
// inventory, references and checkers past their dates.
type Sweeper struct {
	inventory    InventoryStore
	transactions TransactionStore
	references   ReferenceStore
	checkers     CheckerStore
	locker       Locker
	config       Config
	clock        Clock
}

func New(
	inventory InventoryStore,
	transactions TransactionStore,
	references ReferenceStore,
	checkers CheckerStore,
	locker Locker,
	config Config,
) *Sweeper {
	config.withDefaults()
	return &Sweeper{
		inventory:    inventory,
		transactions: transactions,
		references:   references,
		checkers:     checkers,
		locker:       locker,
		config:       config,
		clock:        systemClock{},
	}
}

// SetClock overrides the time source. Tests only.
func (s *Sweeper) SetClock(c Clock) {
	s.clock = c
}

// Start runs sweep cycles until the context is cancelled. With a locker
// configured, only one instance at a time runs a cycle.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	logger.Info("Sweeper started", "interval", s.config.Interval, "stale_claim_age", s.config.StaleClaimAge)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.runLocked(ctx)
		}
	}
}

func (s *Sweeper) runLocked(ctx context.Context) {
	if s.locker != nil {
		acquired, err := s.locker.SetNX(s.config.LockKey, []byte("1"), s.config.LockTTL)
		if err != nil {
			logger.Error("Sweeper lock error", "error", err)
			return
		}
		if !acquired {
			logger.Debug("Sweep skipped, another instance holds the lock")
			return
		}
		defer func() {
			if err := s.locker.Del(s.config.LockKey); err != nil {
				logger.Warn("Failed to release sweeper lock", "error", err)
			}
		}()
	}

	result, err := s.RunOnce(ctx)
	if err != nil {
		logger.Error("Sweep cycle failed", "error", err)
		return
	}
	if result.ExpiredTransactions+result.StaleClaimsReleased+result.ExpiredInventory+
		result.ExpiredReferences+result.ExpiredCheckers > 0 {
		logger.Info("Sweep cycle done",
			"expired_transactions", result.ExpiredTransactions,
			"released_claims", result.ReleasedClaims,
			"stale_claims_released", result.StaleClaimsReleased,
			"expired_inventory", result.ExpiredInventory,
			"expired_references", result.ExpiredReferences,
			"expired_checkers", result.ExpiredCheckers)
	}
}

// RunOnce executes a single sweep cycle.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	now := s.clock.Now()
	result := &Result{}

	txns, err := s.transactions.FindExpired(ctx, now, s.config.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, txn := range txns {
		if err := s.transactions.Transition(ctx, txn.ID, model.TransactionStatusExpired); err != nil {
			// Lost the race with a concurrent payment confirmation; the
			// claim belongs to that flow now.
			logger.Warn("Skipping expiry, transaction moved on", "id", txn.ID, "error", err)
			continue
		}
		result.ExpiredTransactions++

		if txn.ClaimToken != "" {
			if err := s.inventory.Release(ctx, txn.ClaimToken); err != nil {
				logger.Error("Failed to release claim of expired transaction", "id", txn.ID, "error", err)
				continue
			}
			result.ReleasedClaims++
		}
	}

	if result.ReleasedClaims > 0 {
		prom.AddInventoryReleased(float64(result.ReleasedClaims), "expired_transaction")
	}

	if result.StaleClaimsReleased, err = s.inventory.ReleaseStale(ctx, now.Add(-s.config.StaleClaimAge)); err != nil {
		return result, err
	}
	if result.StaleClaimsReleased > 0 {
		prom.AddInventoryReleased(float64(result.StaleClaimsReleased), "stale_claim")
	}
	if result.ExpiredInventory, err = s.inventory.MarkExpired(ctx, now); err != nil {
		return result, err
	}
	if result.ExpiredReferences, err = s.references.MarkExpired(ctx, now); err != nil {
		return result, err
	}
	if result.ExpiredCheckers, err = s.checkers.MarkExpired(ctx, now); err != nil {
		return result, err
	}

	return result, nil
}
