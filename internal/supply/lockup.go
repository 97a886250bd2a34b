// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// near-indexer-for-explorer-sub000 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with near-indexer-for-explorer-sub000. If not, see <http://www.gnu.org/licenses/>.

package supply

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// borshReader decodes the lockup contract's persisted state. Field
// ordering and widths mirror the contract's own Borsh layout exactly:
// fixed-width little-endian integers, length-prefixed strings/byte
// vectors, and a one-byte tag for Option and for enum discriminants, in
// declaration order.
type borshReader struct {
	b   []byte
	pos int
}

func newBorshReader(b []byte) *borshReader { return &borshReader{b: b} }

func (r *borshReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, io.ErrUnexpectedEOF
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *borshReader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *borshReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// u128 reads a 16-byte little-endian unsigned integer into a *big.Int.
func (r *borshReader) u128() (*big.Int, error) {
	b, err := r.take(16)
	if err != nil {
		return nil, err
	}
	be := make([]byte, 16)
	for i, v := range b {
		be[15-i] = v
	}
	return new(big.Int).SetBytes(be), nil
}

func (r *borshReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *borshReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *borshReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// optU64 decodes an Option<u64>: a 1-byte presence tag followed by the
// value if present.
func (r *borshReader) optU64() (*uint64, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	v, err := r.u64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *borshReader) optStr() (*string, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	v, err := r.str()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// TransfersEnabled / TransfersDisabled, in the contract's enum order.
type transfersInformation struct {
	enabled           bool
	transfersTimestamp uint64 // valid only if enabled
}

// VestingInformation variants, tagged by kind.
type vestingKind int

const (
	vestingNone vestingKind = iota
	vestingHash
	vestingSchedule
	vestingTerminating
)

type vestingSchedule struct {
	startTimestamp uint64
	cliffTimestamp uint64
	endTimestamp   uint64
}

type terminationInformation struct {
	unvestedAmount *big.Int
}

type vestingInformation struct {
	kind        vestingKind
	schedule    vestingSchedule
	terminating terminationInformation
}

// lockupInformation is the lockup schedule/amount sub-record.
type lockupInformation struct {
	lockupAmount              *big.Int
	terminationWithdrawnTokens *big.Int
	lockupDuration             uint64
	releaseDuration            *uint64
	lockupTimestamp            *uint64
	transfersInformation       transfersInformation
}

// lockupContract is the full deserialized persisted state of one lockup
// account, decoded from a ViewState response's raw bytes.
type lockupContract struct {
	ownerAccountID               string
	lockupInformation            lockupInformation
	vestingInformation           vestingInformation
	stakingPoolWhitelistAccountID string
	// staking_information and foundation_account_id are present in the
	// on-chain layout (decoded to stay byte-aligned with what follows
	// them) but unused by the locked-amount formula.
}

// decodeLockupContract parses raw, the Borsh-encoded bytes returned by a
// ViewState call against a lockup account's root key.
func decodeLockupContract(raw []byte) (*lockupContract, error) {
	r := newBorshReader(raw)

	owner, err := r.str()
	if err != nil {
		return nil, fmt.Errorf("supply: decode owner_account_id: %w", err)
	}

	lockupAmount, err := r.u128()
	if err != nil {
		return nil, fmt.Errorf("supply: decode lockup_amount: %w", err)
	}
	withdrawn, err := r.u128()
	if err != nil {
		return nil, fmt.Errorf("supply: decode termination_withdrawn_tokens: %w", err)
	}
	lockupDuration, err := r.u64()
	if err != nil {
		return nil, fmt.Errorf("supply: decode lockup_duration: %w", err)
	}
	releaseDuration, err := r.optU64()
	if err != nil {
		return nil, fmt.Errorf("supply: decode release_duration: %w", err)
	}
	lockupTimestamp, err := r.optU64()
	if err != nil {
		return nil, fmt.Errorf("supply: decode lockup_timestamp: %w", err)
	}
	transfersTag, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("supply: decode transfers_information tag: %w", err)
	}
	var transfers transfersInformation
	switch transfersTag {
	case 0: // TransfersEnabled { transfers_timestamp }
		ts, err := r.u64()
		if err != nil {
			return nil, fmt.Errorf("supply: decode transfers_timestamp: %w", err)
		}
		transfers = transfersInformation{enabled: true, transfersTimestamp: ts}
	case 1: // TransfersDisabled { transfer_poll_account_id }
		if _, err := r.str(); err != nil {
			return nil, fmt.Errorf("supply: decode transfer_poll_account_id: %w", err)
		}
		transfers = transfersInformation{enabled: false}
	default:
		return nil, fmt.Errorf("supply: unknown transfers_information tag %d", transfersTag)
	}

	vestingTag, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("supply: decode vesting_information tag: %w", err)
	}
	var vesting vestingInformation
	switch vestingTag {
	case 0: // None
		vesting = vestingInformation{kind: vestingNone}
	case 1: // VestingHash(Base64VecU8)
		if _, err := r.bytes(); err != nil {
			return nil, fmt.Errorf("supply: decode vesting hash bytes: %w", err)
		}
		vesting = vestingInformation{kind: vestingHash}
	case 2: // VestingSchedule
		start, err := r.u64()
		if err != nil {
			return nil, fmt.Errorf("supply: decode vesting start_timestamp: %w", err)
		}
		cliff, err := r.u64()
		if err != nil {
			return nil, fmt.Errorf("supply: decode vesting cliff_timestamp: %w", err)
		}
		end, err := r.u64()
		if err != nil {
			return nil, fmt.Errorf("supply: decode vesting end_timestamp: %w", err)
		}
		vesting = vestingInformation{kind: vestingSchedule, schedule: vestingSchedule{startTimestamp: start, cliffTimestamp: cliff, endTimestamp: end}}
	case 3: // Terminating(TerminationInformation)
		unvested, err := r.u128()
		if err != nil {
			return nil, fmt.Errorf("supply: decode unvested_amount: %w", err)
		}
		if _, err := r.u8(); err != nil { // TerminationStatus discriminant
			return nil, fmt.Errorf("supply: decode termination status: %w", err)
		}
		vesting = vestingInformation{kind: vestingTerminating, terminating: terminationInformation{unvestedAmount: unvested}}
	default:
		return nil, fmt.Errorf("supply: unknown vesting_information tag %d", vestingTag)
	}

	whitelist, err := r.str()
	if err != nil {
		return nil, fmt.Errorf("supply: decode staking_pool_whitelist_account_id: %w", err)
	}

	// staking_information: Option<StakingInformation>.
	stakingTag, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("supply: decode staking_information tag: %w", err)
	}
	if stakingTag != 0 {
		if _, err := r.str(); err != nil { // staking_pool_account_id
			return nil, fmt.Errorf("supply: decode staking_pool_account_id: %w", err)
		}
		if _, err := r.u8(); err != nil { // TransactionStatus
			return nil, fmt.Errorf("supply: decode staking status: %w", err)
		}
		if _, err := r.u128(); err != nil { // deposit_amount
			return nil, fmt.Errorf("supply: decode deposit_amount: %w", err)
		}
	}

	// foundation_account_id: Option<AccountId>.
	if _, err := r.optStr(); err != nil {
		return nil, fmt.Errorf("supply: decode foundation_account_id: %w", err)
	}

	return &lockupContract{
		ownerAccountID: owner,
		lockupInformation: lockupInformation{
			lockupAmount:               lockupAmount,
			terminationWithdrawnTokens: withdrawn,
			lockupDuration:             lockupDuration,
			releaseDuration:            releaseDuration,
			lockupTimestamp:            lockupTimestamp,
			transfersInformation:       transfers,
		},
		vestingInformation:            vesting,
		stakingPoolWhitelistAccountID: whitelist,
	}, nil
}

// transfersEnabledConstant is the nanosecond timestamp Mainnet transfers
// were enabled at, injected over whatever transfers_information the
// contract itself reports -- this repairs contracts whose owners never
// called the transfer-vote method. Tuesday, 13 October 2020 18:38:58.293.
const transfersEnabledConstant uint64 = 1602614338293769340

// knownLockupBugHashes maps a lockup contract's code hash to whether that
// binary version has the lockup-start-date bug
// (near/core-contracts#136). Unknown hashes abort the day's computation.
var knownLockupBugHashes = map[string]bool{
	"3kVY9qcVRoW3B5498SMX6R3rtSLiCdmBzKs7zcnzDJ7Q": true,
	"DiC9bKCqUHqoYqUXovAnqugiuntHWnM3cAc7KrgaHTu":  true,
	"Cw7bnyp4B6ypwvgZuMmJtY6rHsxP2D4PC8deqeJ3HP7D": false,
	"4Pfw2RU6e35dUsHQQoFYfwX8KFFvSRNwMSNLXuSFHXrC": false,
}

// ErrUnknownContractVersion reports a lockup code hash outside the known
// table; the day's computation aborts and retries in 2h per C12's state
// machine, since only an operator updating the table can resolve it.
type ErrUnknownContractVersion struct {
	AccountID string
	CodeHash  string
}

func (e *ErrUnknownContractVersion) Error() string {
	return fmt.Sprintf("supply: unrecognized lockup contract version for %s, code hash %s", e.AccountID, e.CodeHash)
}

// lockupHasBug looks up codeHash in the known-versions table.
func lockupHasBug(accountID, codeHash string) (bool, error) {
	hasBug, ok := knownLockupBugHashes[codeHash]
	if !ok {
		return false, &ErrUnknownContractVersion{AccountID: accountID, CodeHash: codeHash}
	}
	return hasBug, nil
}

// getLockedAmount computes the amount still locked at blockTimestamp
// (ns), given whether this contract's binary version carries the
// lockup-start-date bug. Mirrors the lockup contract's own
// get_locked_amount getter.
func (c *lockupContract) getLockedAmount(blockTimestamp uint64, hasBug bool) *big.Int {
	li := c.lockupInformation
	if li.transfersInformation.enabled {
		lockupTimestamp := li.transfersInformation.transfersTimestamp + li.lockupDuration
		if li.lockupTimestamp != nil && *li.lockupTimestamp > lockupTimestamp {
			lockupTimestamp = *li.lockupTimestamp
		}

		if lockupTimestamp <= blockTimestamp {
			unreleased := big.NewInt(0)
			if li.releaseDuration != nil {
				startLockup := lockupTimestamp
				if hasBug {
					startLockup = li.transfersInformation.transfersTimestamp
				}
				endTimestamp := startLockup + *li.releaseDuration
				if blockTimestamp < endTimestamp {
					timeLeft := new(big.Int).SetUint64(endTimestamp - blockTimestamp)
					unreleased = new(big.Int).Mul(li.lockupAmount, timeLeft)
					unreleased.Div(unreleased, new(big.Int).SetUint64(*li.releaseDuration))
				}
			}

			var unvested *big.Int
			switch c.vestingInformation.kind {
			case vestingTerminating:
				unvested = c.vestingInformation.terminating.unvestedAmount
			case vestingSchedule:
				unvested = c.getUnvestedAmount(c.vestingInformation.schedule, blockTimestamp)
			default:
				unvested = big.NewInt(0)
			}

			unreleasedMinusWithdrawn := new(big.Int).Sub(unreleased, li.terminationWithdrawnTokens)
			if unreleasedMinusWithdrawn.Sign() < 0 {
				unreleasedMinusWithdrawn.SetInt64(0)
			}
			if unvested.Cmp(unreleasedMinusWithdrawn) > 0 {
				return new(big.Int).Set(unvested)
			}
			return unreleasedMinusWithdrawn
		}
	}
	// Before the lockup timestamp (or transfers still disabled): the
	// entire balance minus whatever was already withdrawn is locked.
	return new(big.Int).Sub(li.lockupAmount, li.terminationWithdrawnTokens)
}

// getUnvestedAmount computes the portion of lockupAmount still unvested
// under a public vesting schedule at blockTimestamp.
func (c *lockupContract) getUnvestedAmount(vs vestingSchedule, blockTimestamp uint64) *big.Int {
	lockupAmount := c.lockupInformation.lockupAmount
	switch {
	case blockTimestamp < vs.cliffTimestamp:
		return new(big.Int).Set(lockupAmount)
	case blockTimestamp >= vs.endTimestamp:
		return big.NewInt(0)
	default:
		timeLeft := new(big.Int).SetUint64(vs.endTimestamp - blockTimestamp)
		totalTime := new(big.Int).SetUint64(vs.endTimestamp - vs.startTimestamp)
		unvested := new(big.Int).Mul(lockupAmount, timeLeft)
		unvested.Div(unvested, totalTime)
		return unvested
	}
}
