// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package supply

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64ptr(v uint64) *uint64 { return &v }

// syntheticContract builds the contract from the invariant's worked
// example: release_duration=100ns, lockup_amount=1_000_000,
// lockup_timestamp=0, transfers_timestamp=0, has_bug=false.
func syntheticContract() *lockupContract {
	return &lockupContract{
		ownerAccountID: "owner.near",
		lockupInformation: lockupInformation{
			lockupAmount:               big.NewInt(1_000_000),
			terminationWithdrawnTokens: big.NewInt(0),
			lockupDuration:             0,
			releaseDuration:            u64ptr(100),
			lockupTimestamp:            u64ptr(0),
			transfersInformation: transfersInformation{
				enabled:            true,
				transfersTimestamp: 0,
			},
		},
		vestingInformation: vestingInformation{kind: vestingNone},
	}
}

func TestGetLockedAmount_PartwayThroughRelease(t *testing.T) {
	c := syntheticContract()
	got := c.getLockedAmount(50, false)
	assert.Equal(t, "500000", got.String())
}

func TestGetLockedAmount_AtReleaseEnd(t *testing.T) {
	c := syntheticContract()
	got := c.getLockedAmount(100, false)
	assert.Equal(t, "0", got.String())
}

func TestGetLockedAmount_AfterReleaseEnd(t *testing.T) {
	c := syntheticContract()
	got := c.getLockedAmount(150, false)
	assert.Equal(t, "0", got.String())
}

func TestGetLockedAmount_BeforeLockupTimestamp(t *testing.T) {
	c := syntheticContract()
	c.lockupInformation.lockupTimestamp = u64ptr(1000)
	got := c.getLockedAmount(50, false)
	assert.Equal(t, "1000000", got.String())
}

func TestGetLockedAmount_TransfersStillDisabled(t *testing.T) {
	c := syntheticContract()
	c.lockupInformation.transfersInformation = transfersInformation{enabled: false}
	got := c.getLockedAmount(1_000_000, false)
	assert.Equal(t, "1000000", got.String())
}

func TestGetLockedAmount_BugVersionShiftsReleaseStartToTransfersTimestamp(t *testing.T) {
	// transfers_timestamp=0, lockup_duration=0, but an explicit
	// lockup_timestamp=60 pushes the computed lockup start past the
	// transfers timestamp -- only the buggy version measures release
	// progress from transfers_timestamp instead.
	withBug := syntheticContract()
	withBug.lockupInformation.lockupTimestamp = u64ptr(60)

	buggy := withBug.getLockedAmount(80, true)
	fixed := withBug.getLockedAmount(80, false)
	assert.NotEqual(t, buggy.String(), fixed.String())
	assert.Equal(t, "200000", buggy.String())
	assert.Equal(t, "800000", fixed.String())
}

func TestGetLockedAmount_TerminatingVestingUsesUnvestedAmountDirectly(t *testing.T) {
	c := syntheticContract()
	c.vestingInformation = vestingInformation{
		kind:        vestingTerminating,
		terminating: terminationInformation{unvestedAmount: big.NewInt(200_000)},
	}
	// At the release end nothing is unreleased, so the locked amount is
	// the terminating unvested amount itself.
	got := c.getLockedAmount(100, false)
	assert.Equal(t, "200000", got.String())
}

func TestGetUnvestedAmount_BeforeCliff(t *testing.T) {
	c := syntheticContract()
	c.lockupInformation.lockupAmount = big.NewInt(1_000_000)
	vs := vestingSchedule{startTimestamp: 0, cliffTimestamp: 100, endTimestamp: 200}
	got := c.getUnvestedAmount(vs, 50)
	assert.Equal(t, "1000000", got.String())
}

func TestGetUnvestedAmount_AfterEnd(t *testing.T) {
	c := syntheticContract()
	vs := vestingSchedule{startTimestamp: 0, cliffTimestamp: 100, endTimestamp: 200}
	got := c.getUnvestedAmount(vs, 250)
	assert.Equal(t, "0", got.String())
}

func TestGetUnvestedAmount_Partway(t *testing.T) {
	c := syntheticContract()
	c.lockupInformation.lockupAmount = big.NewInt(1_000_000)
	vs := vestingSchedule{startTimestamp: 0, cliffTimestamp: 0, endTimestamp: 100}
	got := c.getUnvestedAmount(vs, 50)
	assert.Equal(t, "500000", got.String())
}

func TestLockupHasBug_KnownHashes(t *testing.T) {
	cases := []struct {
		hash string
		want bool
	}{
		{"3kVY9qcVRoW3B5498SMX6R3rtSLiCdmBzKs7zcnzDJ7Q", true},
		{"DiC9bKCqUHqoYqUXovAnqugiuntHWnM3cAc7KrgaHTu", true},
		{"Cw7bnyp4B6ypwvgZuMmJtY6rHsxP2D4PC8deqeJ3HP7D", false},
		{"4Pfw2RU6e35dUsHQQoFYfwX8KFFvSRNwMSNLXuSFHXrC", false},
	}
	for _, tc := range cases {
		got, err := lockupHasBug("some.lockup.near", tc.hash)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestLockupHasBug_UnknownHashReturnsTypedError(t *testing.T) {
	_, err := lockupHasBug("some.lockup.near", "unknown-hash")
	require.Error(t, err)
	var uerr *ErrUnknownContractVersion
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "some.lockup.near", uerr.AccountID)
	assert.Equal(t, "unknown-hash", uerr.CodeHash)
}

func TestDecodeLockupContract_RoundTripsKnownFields(t *testing.T) {
	w := &borshWriter{}
	w.writeStr("owner.near")
	w.writeU128(big.NewInt(1_000_000))
	w.writeU128(big.NewInt(0))
	w.writeU64(0)
	w.writeOptU64(u64ptr(100))
	w.writeOptU64(u64ptr(0))
	w.writeU8(0) // TransfersEnabled
	w.writeU64(0)
	w.writeU8(0) // VestingInformation::None
	w.writeStr("whitelist.near")
	w.writeU8(0) // staking_information: None
	w.writeOptStr(nil)

	contract, err := decodeLockupContract(w.bytes())
	require.NoError(t, err)
	assert.Equal(t, "owner.near", contract.ownerAccountID)
	assert.Equal(t, "1000000", contract.lockupInformation.lockupAmount.String())
	assert.Equal(t, "whitelist.near", contract.stakingPoolWhitelistAccountID)
	assert.True(t, contract.lockupInformation.transfersInformation.enabled)
	assert.Equal(t, vestingNone, contract.vestingInformation.kind)
}

// borshWriter is a minimal test-only encoder mirroring borshReader's
// layout, used to build synthetic contract state without a live chain.
type borshWriter struct {
	buf []byte
}

func (w *borshWriter) writeU8(v byte) { w.buf = append(w.buf, v) }

func (w *borshWriter) writeU32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *borshWriter) writeU64(v uint64) {
	for i := 0; i < 8; i++ {
		w.buf = append(w.buf, byte(v>>(8*i)))
	}
}

func (w *borshWriter) writeU128(v *big.Int) {
	be := v.Bytes()
	le := make([]byte, 16)
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	w.buf = append(w.buf, le...)
}

func (w *borshWriter) writeStr(s string) {
	w.writeU32(uint32(len(s)))
	w.buf = append(w.buf, []byte(s)...)
}

func (w *borshWriter) writeOptU64(v *uint64) {
	if v == nil {
		w.writeU8(0)
		return
	}
	w.writeU8(1)
	w.writeU64(*v)
}

func (w *borshWriter) writeOptStr(v *string) {
	if v == nil {
		w.writeU8(0)
		return
	}
	w.writeU8(1)
	w.writeStr(*v)
}

func (w *borshWriter) bytes() []byte { return w.buf }
