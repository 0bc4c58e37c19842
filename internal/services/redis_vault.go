package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var vaultLog = logging.Logger("vault")

// RedisVault keeps balances as decimal strings so amounts of any size stay
// exact. Every move is an optimistic transaction over both balances.
type RedisVault struct {
	client   *redis.Client
	contract common.Address
}

func NewRedisVault(rs *RedisService, contract common.Address) *RedisVault {
	return &RedisVault{client: rs.Client(), contract: contract}
}

func (v *RedisVault) Contract() common.Address {
	return v.contract
}

func (v *RedisVault) Collect(ctx context.Context, from common.Address, amount *big.Int) error {
	return v.move(ctx, from, v.contract, amount)
}

func (v *RedisVault) Return(ctx context.Context, to common.Address, amount *big.Int) error {
	return v.move(ctx, v.contract, to, amount)
}

func (v *RedisVault) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	rejecting, err := v.client.SIsMember(ctx, KeyVaultRejecting, to.Hex()).Result()
	if err != nil {
		return errors.Wrap(err, "check recipient")
	}
	if rejecting {
		return errors.Wrapf(ErrTransferRejected, "to %s", to.Hex())
	}
	return v.move(ctx, v.contract, to, amount)
}

func (v *RedisVault) Balance(ctx context.Context) (*big.Int, error) {
	return v.BalanceOf(ctx, v.contract)
}

func (v *RedisVault) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return readBalance(ctx, v.client, balanceKey(addr))
}

// Deposit credits addr, for seeding the prize pool and development faucets.
func (v *RedisVault) Deposit(ctx context.Context, addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.Errorf("negative deposit %s", amount)
	}
	key := balanceKey(addr)
	return v.transact(ctx, func(tx *redis.Tx) error {
		bal, err := readBalance(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, new(big.Int).Add(bal, amount).String(), 0)
			return nil
		})
		return err
	}, key)
}

// SetRejecting makes addr refuse payouts, e.g. for a blocked recipient.
func (v *RedisVault) SetRejecting(ctx context.Context, addr common.Address, reject bool) error {
	if reject {
		return v.client.SAdd(ctx, KeyVaultRejecting, addr.Hex()).Err()
	}
	return v.client.SRem(ctx, KeyVaultRejecting, addr.Hex()).Err()
}

func (v *RedisVault) move(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.Errorf("negative amount %s", amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromKey, toKey := balanceKey(from), balanceKey(to)

	return v.transact(ctx, func(tx *redis.Tx) error {
		src, err := readBalance(ctx, tx, fromKey)
		if err != nil {
			return err
		}
		dst, err := readBalance(ctx, tx, toKey)
		if err != nil {
			return err
		}
		if src.Cmp(amount) < 0 {
			return errors.Wrapf(ErrInsufficientBalance, "%s has %s, needs %s", from.Hex(), src, amount)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fromKey, new(big.Int).Sub(src, amount).String(), 0)
			pipe.Set(ctx, toKey, new(big.Int).Add(dst, amount).String(), 0)
			return nil
		})
		return err
	}, fromKey, toKey)
}

func (v *RedisVault) transact(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < vaultMaxRetries; i++ {
		err := v.client.Watch(ctx, fn, keys...)
		if err == redis.TxFailedErr {
			vaultLog.Debugw("vault transaction contended, retrying", "keys", keys, "attempt", i+1)
			continue
		}
		return err
	}
	return errors.Errorf("vault transaction on %v gave up after %d retries", keys, vaultMaxRetries)
}

type balanceGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readBalance(ctx context.Context, c balanceGetter, key string) (*big.Int, error) {
	raw, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	bal, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.Errorf("corrupt balance %q at %s", raw, key)
	}
	return bal, nil
}

func balanceKey(addr common.Address) string {
	return fmt.Sprintf(KeyVaultBalance, addr.Hex())
}
