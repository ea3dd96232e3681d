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

package analysis

import "hash/fnv"

// Fingerprint hashes a bit vector for the duplicate-suppression hash sets
// used by minimization analyses (spec section 4.5): "a hash set of
// fingerprints of generated bit-vectors suppresses re-submission of an
// input already tried by this phase."
func Fingerprint(bits []bool) uint64 {
	h := fnv.New64a()
	buf := make([]byte, len(bits))
	for i, b := range bits {
		if b {
			buf[i] = 1
		}
	}
	_, _ = h.Write(buf)
	return h.Sum64()
}
