package wallet

import "time"

// CauseInsufficientFunds is the only recorded cause of death.
const CauseInsufficientFunds = "insufficient_funds"

// Wallet is an active, billable custodial account.
type Wallet struct {
	Name             string
	CreatedAt        time.Time
	LastChargedAt    *time.Time
	TotalCharged     int64
	LastKnownBalance int64
	Epitaph          string
	AccountRef       string
	Address          string
	CreatorOrigin    string
}

// Grave is the permanent record of a reaped wallet.
type Grave struct {
	Name         string
	CreatedAt    time.Time
	DeletedAt    time.Time
	CauseOfDeath string
	Flavor       string
	TotalCharged int64
	Epitaph      string
	Flowers      int64
}

// Unburied is an active row left behind by a burial whose grave was written
// but whose active row was not removed.
type Unburied struct {
	Grave      Grave
	AccountRef string
}

// Age is how long the wallet lived.
func (g Grave) Age() time.Duration {
	return g.DeletedAt.Sub(g.CreatedAt)
}

// Stats is the service-wide aggregate row.
type Stats struct {
	TotalWalletsCreated   int64
	TotalWalletsDied      int64
	TotalChargesCollected int64
	PeakConcurrentWallets int64
	LastChargeRunAt       *time.Time
	NextChargeRunAt       *time.Time
}

// Achievement is an unlocked milestone. At most one exists per ID.
type Achievement struct {
	ID         string
	Title      string
	UnlockedAt time.Time
	WalletName string
}

// GraveSort orders graveyard listings by death time.
type GraveSort string

const (
	SortRecent GraveSort = "recent"
	SortOldest GraveSort = "oldest"
)
