// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package model holds the data types every other package in this repository
// shares: the contract the target executor honours (LocationID,
// BranchingCoverageInfo, ExecutionTrace) and the typed view of the bytes fed
// to the target's standard input (StdinBitsAndTypes).
package model

import "fmt"

// LocationID identifies a static branching in the target (ID) together with
// the dynamic calling context it was reached from (ContextHash). Equality
// and hashing are over both fields.
type LocationID struct {
	ID          uint32
	ContextHash uint32
}

// Key packs the pair into a single comparable value, suitable for use as a
// map key without relying on struct comparability rules changing.
func (l LocationID) Key() uint64 {
	return uint64(l.ID)<<32 | uint64(l.ContextHash)
}

func (l LocationID) String() string {
	return fmt.Sprintf("%d/%08x", l.ID, l.ContextHash)
}

// InvalidLocationID is the zero value, matching the original instrumentation
// library's invalid_location_id().
var InvalidLocationID = LocationID{}
