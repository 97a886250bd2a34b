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

package models

// ActionKind enumerates the action variants carried by transactions and
// action receipts.
type ActionKind string

const (
	ActionCreateAccount  ActionKind = "CREATE_ACCOUNT"
	ActionDeployContract ActionKind = "DEPLOY_CONTRACT"
	ActionFunctionCall   ActionKind = "FUNCTION_CALL"
	ActionTransfer       ActionKind = "TRANSFER"
	ActionStake          ActionKind = "STAKE"
	ActionAddKey         ActionKind = "ADD_KEY"
	ActionDeleteKey      ActionKind = "DELETE_KEY"
	ActionDeleteAccount  ActionKind = "DELETE_ACCOUNT"
	ActionDelegate       ActionKind = "DELEGATE_ACTION"
)

// ReceiptKind distinguishes action receipts (carrying executable actions)
// from data receipts (carrying the output of a prior action receipt).
type ReceiptKind string

const (
	ReceiptKindAction ReceiptKind = "ACTION"
	ReceiptKindData   ReceiptKind = "DATA"
)

// ExecutionStatus is the outcome status of an executed receipt.
type ExecutionStatus string

const (
	ExecutionStatusUnknown          ExecutionStatus = "UNKNOWN"
	ExecutionStatusFailure          ExecutionStatus = "FAILURE"
	ExecutionStatusSuccessValue     ExecutionStatus = "SUCCESS_VALUE"
	ExecutionStatusSuccessReceiptID ExecutionStatus = "SUCCESS_RECEIPT_ID"
)

// AccessKeyPermissionKind enumerates access key permission scopes.
type AccessKeyPermissionKind string

const (
	PermissionFullAccess  AccessKeyPermissionKind = "FULL_ACCESS"
	PermissionFunctionCall AccessKeyPermissionKind = "FUNCTION_CALL"
)

// StateChangeCause enumerates why a state change occurred, as reported by
// the upstream stream alongside each state_changes_with_cause entry.
type StateChangeCause string

const (
	CauseTransactionProcessing        StateChangeCause = "TRANSACTION_PROCESSING"
	CauseActionReceiptProcessingStarted StateChangeCause = "ACTION_RECEIPT_PROCESSING_STARTED"
	CauseActionReceiptGasReward        StateChangeCause = "ACTION_RECEIPT_GAS_REWARD"
	CauseReceiptProcessing              StateChangeCause = "RECEIPT_PROCESSING"
	CausePostponedReceipt               StateChangeCause = "POSTPONED_RECEIPT"
	CauseInitialState                  StateChangeCause = "INITIAL_STATE"
	CauseValidatorAccountsUpdate        StateChangeCause = "VALIDATOR_ACCOUNTS_UPDATE"
	CauseMigration                      StateChangeCause = "MIGRATION"
)

// StateChangeValueKind enumerates the kind of the changed value carried by
// a state_changes_with_cause entry.
type StateChangeValueKind string

const (
	ValueAccountUpdate    StateChangeValueKind = "ACCOUNT_UPDATE"
	ValueAccountDeletion  StateChangeValueKind = "ACCOUNT_DELETION"
	ValueAccessKeyUpdate  StateChangeValueKind = "ACCESS_KEY_UPDATE"
	ValueAccessKeyDeletion StateChangeValueKind = "ACCESS_KEY_DELETION"
)

// EventStandard enumerates the `standard` discriminator of an EVENT_JSON log.
type EventStandard string

const (
	StandardFungibleToken    EventStandard = "nep141"
	StandardNonFungibleToken EventStandard = "nep171"
)

// EventKind enumerates the `event` discriminator of an EVENT_JSON log.
type EventKind string

const (
	EventFTMint     EventKind = "ft_mint"
	EventFTTransfer EventKind = "ft_transfer"
	EventFTBurn     EventKind = "ft_burn"
	EventNFTMint     EventKind = "nft_mint"
	EventNFTTransfer EventKind = "nft_transfer"
	EventNFTBurn     EventKind = "nft_burn"
)
