package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/epitaph"
	"github.com/lncurl/lncurl/internal/ledger"
)

// MaxNameAttempts bounds provisioning retries on name conflicts.
const MaxNameAttempts = 10

// ErrProvisioning is returned when no account could be provisioned within
// MaxNameAttempts.
var ErrProvisioning = errors.New("wallet provisioning failed")

// NameSource produces unused wallet names.
type NameSource interface {
	Generate(ctx context.Context, attempt int) (string, error)
}

// Service creates wallets and serves read models over the repository.
type Service struct {
	repo      Repository
	ledger    ledger.Ledger
	names     NameSource
	bus       *activity.Bus
	clock     clock.Clock
	originKey []byte
	logger    *slog.Logger
}

// NewService builds a wallet service instance. originKey keys the digest
// stored in place of the creator's address; it may be empty.
func NewService(repo Repository, led ledger.Ledger, names NameSource, bus *activity.Bus, clk clock.Clock, originKey []byte, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{repo: repo, ledger: led, names: names, bus: bus, clock: clk, originKey: originKey, logger: logger}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	// Message is the optional user supplied epitaph. Empty picks a stock one.
	Message string
	Origin  string
}

// Created is a freshly provisioned wallet and its connection string.
type Created struct {
	Wallet     Wallet
	PairingURI string
}

// Create provisions a ledger account under a fresh name and records the
// wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Created, error) {
	var words string
	if input.Message != "" {
		words, _ = epitaph.Sanitize(input.Message)
	} else {
		words = epitaph.Random()
	}

	origin, err := s.digestOrigin(input.Origin)
	if err != nil {
		return Created{}, err
	}

	for attempt := 0; attempt < MaxNameAttempts; attempt++ {
		name, err := s.names.Generate(ctx, attempt)
		if err != nil {
			return Created{}, fmt.Errorf("%w: %v", ErrProvisioning, err)
		}

		account, err := s.ledger.CreateAccount(ctx, name)
		if errors.Is(err, ledger.ErrNameConflict) {
			s.logger.Warn("wallet name rejected by ledger", "wallet", name, "attempt", attempt)
			continue
		}
		if err != nil {
			return Created{}, fmt.Errorf("create account: %w", err)
		}

		w := Wallet{
			Name:          name,
			CreatedAt:     s.clock.Now().UTC(),
			Epitaph:       words,
			AccountRef:    account.Ref,
			Address:       account.Address,
			CreatorOrigin: origin,
		}
		if err := s.repo.Create(ctx, w); err != nil {
			s.releaseAccount(ctx, name, account.Ref)
			if errors.Is(err, ErrNameTaken) {
				continue
			}
			return Created{}, fmt.Errorf("store wallet: %w", err)
		}

		if _, err := s.bus.Publish(ctx, activity.Event{
			Type:       activity.TypeWalletCreated,
			WalletName: name,
			Message:    name + " was born",
		}); err != nil {
			s.logger.Warn("publish wallet created", "wallet", name, "error", err)
		}
		s.logger.Info("wallet created", "wallet", name, "ref", account.Ref)
		return Created{Wallet: w, PairingURI: account.PairingURI}, nil
	}
	return Created{}, ErrProvisioning
}

func (s *Service) releaseAccount(ctx context.Context, name, ref string) {
	if err := s.ledger.DeleteAccount(ctx, ref); err != nil {
		s.logger.Warn("release orphaned account", "wallet", name, "ref", ref, "error", err)
	}
}

func (s *Service) digestOrigin(origin string) (string, error) {
	if origin == "" {
		return "", nil
	}
	h, err := blake2b.New256(s.originKey)
	if err != nil {
		return "", fmt.Errorf("origin digest: %w", err)
	}
	h.Write([]byte(origin))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves an active wallet.
func (s *Service) Get(ctx context.Context, name string) (Wallet, error) {
	return s.repo.Get(ctx, name)
}

// Ranked is a leaderboard row.
type Ranked struct {
	Rank       int
	Wallet     Wallet
	Age        string
	AgeSeconds int64
	Title      string
	Tier       int
}

// Leaderboard returns the limit oldest living wallets with their titles.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Ranked, error) {
	wallets, err := s.repo.Oldest(ctx, limit)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]Ranked, 0, len(wallets))
	for i, w := range wallets {
		age := now.Sub(w.CreatedAt)
		title, tier := Title(age)
		out = append(out, Ranked{
			Rank:       i + 1,
			Wallet:     w,
			Age:        FormatAge(age),
			AgeSeconds: int64(age.Seconds()),
			Title:      title,
			Tier:       tier,
		})
	}
	return out, nil
}

// Graveyard pages through dead wallets.
func (s *Service) Graveyard(ctx context.Context, sort GraveSort, offset, limit int) ([]Grave, int64, error) {
	return s.repo.ListGraves(ctx, sort, offset, limit)
}

// LayFlower adds a tribute to a grave.
func (s *Service) LayFlower(ctx context.Context, name string) (int64, error) {
	return s.repo.AddFlower(ctx, name)
}
