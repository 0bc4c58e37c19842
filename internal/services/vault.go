package services

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferRejected    = errors.New("recipient rejected transfer")
)

// Vault holds the game's funds. The contract account is the game's own
// balance; Balance reports what it actually holds, independent of the
// ledger's pool figure.
type Vault interface {
	// Collect moves an attached payment from a participant into the contract account.
	Collect(ctx context.Context, from common.Address, amount *big.Int) error
	// Return gives back part of a collected payment. Recipients cannot reject it.
	Return(ctx context.Context, to common.Address, amount *big.Int) error
	// Transfer pays out of the contract account. Recipients may reject it.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	Balance(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}

type MemoryVault struct {
	mu        sync.Mutex
	contract  common.Address
	balances  map[common.Address]*big.Int
	rejecting map[common.Address]bool
}

func NewMemoryVault(contract common.Address) *MemoryVault {
	return &MemoryVault{
		contract:  contract,
		balances:  make(map[common.Address]*big.Int),
		rejecting: make(map[common.Address]bool),
	}
}

func (v *MemoryVault) Contract() common.Address {
	return v.contract
}

// Deposit credits addr out of thin air. Used for seeding and faucets.
func (v *MemoryVault) Deposit(_ context.Context, addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.Errorf("negative deposit %s", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balanceLocked(addr).Add(v.balanceLocked(addr), amount)
	return nil
}

// SetRejecting makes addr refuse incoming transfers.
func (v *MemoryVault) SetRejecting(addr common.Address, reject bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if reject {
		v.rejecting[addr] = true
	} else {
		delete(v.rejecting, addr)
	}
}

func (v *MemoryVault) Collect(_ context.Context, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.moveLocked(from, v.contract, amount)
}

func (v *MemoryVault) Return(_ context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.moveLocked(v.contract, to, amount)
}

func (v *MemoryVault) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rejecting[to] {
		return errors.Wrapf(ErrTransferRejected, "to %s", to.Hex())
	}
	return v.moveLocked(v.contract, to, amount)
}

func (v *MemoryVault) Balance(ctx context.Context) (*big.Int, error) {
	return v.BalanceOf(ctx, v.contract)
}

func (v *MemoryVault) BalanceOf(_ context.Context, addr common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balanceLocked(addr)), nil
}

func (v *MemoryVault) moveLocked(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.Errorf("negative amount %s", amount)
	}
	src := v.balanceLocked(from)
	if src.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientBalance, "%s has %s, needs %s", from.Hex(), src, amount)
	}
	src.Sub(src, amount)
	dst := v.balanceLocked(to)
	dst.Add(dst, amount)
	return nil
}

func (v *MemoryVault) balanceLocked(addr common.Address) *big.Int {
	b, ok := v.balances[addr]
	if !ok {
		b = new(big.Int)
		v.balances[addr] = b
	}
	return b
}
