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

// Package xerrors declares sentinel error values for the ingestion
// pipeline's error taxonomy; callers match them with errors.Is.
package xerrors

import "errors"

var (
	// ErrNotFound is wrapped by queries that find no matching row, e.g.
	// db.BlockWriter.BlockBeforeTimestamp when no indexed block is that old.
	ErrNotFound = errors.New("not found")

	// ErrMissingParentTransaction names a receipt whose parent transaction
	// hash could not be resolved through any of the four lookup tiers
	// within the retry budget. The receipt resolver does not return it: in
	// non-strict mode it logs such a receipt at warn level and skips it.
	ErrMissingParentTransaction = errors.New("missing parent transaction")

	// ErrUnknownContractVersion names a lockup contract whose code hash is
	// not in the known-versions table. The supply package reports that
	// case with its own *supply.ErrUnknownContractVersion type, not with
	// this value.
	ErrUnknownContractVersion = errors.New("unknown lockup contract version")

	// ErrFatalPrecondition is wrapped when a structural invariant of the
	// incoming stream is violated, e.g. a transaction outcome with no
	// receipt ids. The streamer aborts the run on it, as on any
	// block-processing error.
	ErrFatalPrecondition = errors.New("fatal precondition violated")
)
