package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"perkledger/audit"
	"perkledger/core/events"
	"perkledger/core/genesis"
	"perkledger/core/state"
	"perkledger/core/types"
	"perkledger/crypto"
	"perkledger/native/loyalty"
	"perkledger/native/membership"
	"perkledger/observability"
	"perkledger/storage"
	"perkledger/storage/journal"
)

// Node is the single-writer front door of the loyalty ledger. It owns the
// state manager, the membership registry and the points engine, serializes
// every public operation behind one mutex, and fans emitted events out to the
// journal and the audit index.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	registry *membership.Registry
	engine   *loyalty.Engine

	journal *journal.Journal
	audit   *audit.Index

	// fallbackSeq numbers audit rows when no journal is attached.
	fallbackSeq uint64
	sinkErr     error

	logger  *slog.Logger
	metrics *observability.LedgerMetrics
}

// NewNode wires the ledger runtime on top of db. The genesis spec supplies
// the program authority on every start and is applied to the database exactly
// once, on the first start against an empty state. The journal, audit index
// and logger are optional; nil disables the corresponding sink.
func NewNode(db storage.Database, spec *genesis.GenesisSpec, jrnl *journal.Journal, idx *audit.Index, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if spec == nil {
		return nil, fmt.Errorf("node: genesis spec required")
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("node: validate genesis: %w", err)
	}
	if err := state.EnsureStateVersion(db, false); err != nil {
		return nil, err
	}

	manager := state.NewManager(db)
	cfg, err := manager.LoyaltyGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("node: read ledger config: %w", err)
	}
	if cfg == nil {
		if err := genesis.BuildGenesisFromSpec(spec, db); err != nil {
			return nil, fmt.Errorf("node: apply genesis: %w", err)
		}
	}

	registry := membership.NewRegistry()
	registry.SetState(manager)

	authority := loyalty.NewStaticAuthority(spec.OwnerAddress(), registry)
	for _, admin := range spec.AdminAddresses() {
		authority.GrantAdmin(admin)
	}

	if logger == nil {
		logger = slog.Default()
	}

	n := &Node{
		db:       db,
		state:    manager,
		registry: registry,
		journal:  jrnl,
		audit:    idx,
		logger:   logger.With("component", "node"),
		metrics:  observability.Ledger(),
	}

	engine := loyalty.NewEngine()
	engine.SetState(manager)
	engine.SetRegistry(registry)
	engine.SetAuthority(authority)
	engine.SetEmitter(nodeEventEmitter{node: n})
	n.engine = engine

	return n, nil
}

// SetNowFunc overrides the time source used by the engine and the journal.
// Primarily intended for tests to provide deterministic timestamps. Passing
// nil restores the wall clock.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetNowFunc(now)
	if n.journal != nil {
		n.journal.SetNowFunc(now)
	}
}

// State exposes the underlying state manager for read-only inspection.
func (n *Node) State() *state.Manager { return n.state }

// Registry exposes the membership registry backing the node.
func (n *Node) Registry() *membership.Registry { return n.registry }

// Journal exposes the attached event journal, or nil when none is configured.
func (n *Node) Journal() *journal.Journal { return n.journal }

// Audit exposes the attached audit index, or nil when none is configured.
func (n *Node) Audit() *audit.Index { return n.audit }

// SinkErr reports the first journal or audit failure observed since start.
// Sink failures never reject ledger operations; callers that need durability
// guarantees check this after the fact.
func (n *Node) SinkErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sinkErr
}

type eventWithPayload interface {
	Event() *types.Event
}

type nodeEventEmitter struct {
	node *Node
}

func (e nodeEventEmitter) Emit(evt events.Event) {
	if e.node == nil || evt == nil {
		return
	}
	payload, ok := evt.(eventWithPayload)
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	e.node.recordEvent(event)
}

// recordEvent runs inside the operation that emitted the event, while the
// node mutex is held. Sink failures are logged and remembered, never
// propagated into the operation result.
func (n *Node) recordEvent(event *types.Event) {
	var (
		sequence   uint64
		occurredAt int64
	)
	if n.journal != nil {
		entry, err := n.journal.Append(event)
		if err != nil {
			n.noteSinkErr("journal append failed", event.Type, err)
			return
		}
		sequence = entry.Sequence
		occurredAt = entry.Timestamp
	} else {
		n.fallbackSeq++
		sequence = n.fallbackSeq
		occurredAt = time.Now().Unix()
	}
	if n.audit != nil {
		if err := n.audit.Record(context.Background(), sequence, occurredAt, event); err != nil {
			n.noteSinkErr("audit record failed", event.Type, err)
		}
	}
}

func (n *Node) noteSinkErr(msg, eventType string, err error) {
	if n.sinkErr == nil {
		n.sinkErr = err
	}
	n.logger.Error(msg, "eventType", eventType, "error", err)
}

func (n *Node) observe(op string, start time.Time, err error) {
	n.metrics.Observe(op, time.Since(start), err)
	if err != nil {
		n.logger.Error("ledger operation rejected", "op", op, "error", err)
	}
}

func logAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.PerkPrefix, addr[:]).String()
}

// Mint issues a fresh membership token to user. Only the program owner or an
// admin may mint.
func (n *Node) Mint(caller, user [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	id, err := n.engine.Mint(caller, user)
	n.observe("mint", start, err)
	if err != nil {
		return nil, err
	}
	n.logger.Info("token minted", "tokenId", id.String(), "holder", logAddr(user))
	return id, nil
}

// Burn revokes the supplied token. The holder, an approved spender, or an
// operator of the holder may burn.
func (n *Node) Burn(caller [20]byte, tokenID *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.engine.Burn(caller, tokenID)
	n.observe("burn", start, err)
	if err != nil {
		return err
	}
	n.logger.Info("token burned", "tokenId", tokenID.String(), "caller", logAddr(caller))
	return nil
}

// SetTransferability flips the program-wide transfer switch. Owner only.
func (n *Node) SetTransferability(caller [20]byte, enabled bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.engine.SetTransferability(caller, enabled)
	n.observe("set_transferability", start, err)
	if err != nil {
		return err
	}
	n.logger.Info("transferability updated", "enabled", enabled)
	return nil
}

// TransferPoints moves points from the caller's balance under tokenID to the
// receiving holder.
func (n *Node) TransferPoints(caller, to [20]byte, tokenID, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.engine.TransferPoints(caller, to, tokenID, amount)
	n.observe("transfer", start, err)
	if err != nil {
		return err
	}
	n.logger.Info("points transferred",
		"tokenId", tokenID.String(),
		"from", logAddr(caller),
		"to", logAddr(to),
		"amount", amount.String())
	return nil
}

// RedeemPoints destroys points from the caller's balance under tokenID.
func (n *Node) RedeemPoints(caller [20]byte, tokenID, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.engine.RedeemPoints(caller, tokenID, amount)
	n.observe("redeem", start, err)
	if err != nil {
		return err
	}
	n.metrics.RecordRedeemed(amount)
	n.logger.Info("points redeemed",
		"tokenId", tokenID.String(),
		"holder", logAddr(caller),
		"amount", amount.String())
	return nil
}

// CreditPoints grants points to the token holder's balance. Only the program
// owner or an admin may credit.
func (n *Node) CreditPoints(caller, user [20]byte, tokenID, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.engine.CreditPoints(caller, user, tokenID, amount)
	n.observe("credit", start, err)
	if err != nil {
		return err
	}
	n.logger.Info("points credited",
		"tokenId", tokenID.String(),
		"holder", logAddr(user),
		"amount", amount.String())
	return nil
}

// Approve designates spender as the approved delegate for the supplied token.
// Only the current holder may approve.
func (n *Node) Approve(caller, spender [20]byte, tokenID *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.registry.Approve(caller, spender, tokenID)
	n.observe("approve", start, err)
	if err != nil {
		return err
	}
	n.logger.Info("token approval set", "tokenId", tokenID.String(), "spender", logAddr(spender))
	return nil
}

// SetApprovalForAll grants or revokes operator standing over every token the
// holder owns now or in the future.
func (n *Node) SetApprovalForAll(holder, operator [20]byte, approved bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := n.registry.SetApprovalForAll(holder, operator, approved)
	n.observe("set_approval_for_all", start, err)
	if err != nil {
		return err
	}
	n.logger.Info("operator approval updated",
		"holder", logAddr(holder),
		"operator", logAddr(operator),
		"approved", approved)
	return nil
}

// BalanceOf reports the point balance user holds under tokenID.
func (n *Node) BalanceOf(user [20]byte, tokenID *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	balance, err := n.engine.BalanceOf(user, tokenID)
	n.observe("balance_of", start, err)
	return balance, err
}

// HolderOf reports the current holder of the supplied token.
func (n *Node) HolderOf(tokenID *big.Int) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	holder, err := n.engine.HolderOf(tokenID)
	n.observe("holder_of", start, err)
	return holder, err
}

// ExpiryOf reports the expiry timestamp of the supplied token.
func (n *Node) ExpiryOf(tokenID *big.Int) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	expiry, err := n.engine.ExpiryOf(tokenID)
	n.observe("expiry_of", start, err)
	return expiry, err
}

// IsBurnt reports whether the supplied token has been revoked. Never-issued
// identifiers read as not burnt, except the reserved identifier 0.
func (n *Node) IsBurnt(tokenID *big.Int) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	burnt, err := n.engine.IsBurnt(tokenID)
	n.observe("is_burnt", start, err)
	return burnt, err
}

// IsExpired reports whether the supplied token is past its expiry.
func (n *Node) IsExpired(tokenID *big.Int) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	expired, err := n.engine.IsExpired(tokenID)
	n.observe("is_expired", start, err)
	return expired, err
}

// Transferability reports the program-wide transfer switch.
func (n *Node) Transferability() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	enabled, err := n.engine.Transferability()
	n.observe("transferability", start, err)
	return enabled, err
}

// ApprovedFor reports the approved delegate for the supplied token, if any.
func (n *Node) ApprovedFor(tokenID *big.Int) ([20]byte, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	spender, ok, err := n.registry.ApprovedFor(tokenID)
	n.observe("approved_for", start, err)
	return spender, ok, err
}

// IsOperator reports whether operator holds blanket approval over holder's
// tokens.
func (n *Node) IsOperator(holder, operator [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	ok, err := n.registry.IsOperator(holder, operator)
	n.observe("is_operator", start, err)
	return ok, err
}
