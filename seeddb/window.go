/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package seeddb

import (
	"math"
	"time"
)

// window is one of the five exponentially-weighted reliability estimators
// described in spec.md §4.1: decay constant tau, and three decayed values
// (weight, count, reliability). weight and count are updated identically —
// both track decayed "recency of evidence" mass, kept as separate fields to
// match the on-disk/PeerRecord tuple shape spec.md §3 describes; only
// reliability is outcome-weighted. Both weight/count and reliability stay
// in [0, 1] by construction (a convex combination of two values in [0, 1]),
// which is what makes the "0 ≤ reliability_w(p) ≤ 1" invariant (spec.md §8)
// hold unconditionally rather than by validation.
type window struct {
	tau            time.Duration
	minCount       float64
	minReliability float64

	weight      float64
	count       float64
	reliability float64
}

// update applies one probe outcome, decaying existing evidence by
// elapsed/tau before blending in the new outcome, per spec.md §4.1's
// α_w = 1 − exp(−Δt/τ_w).
func (w *window) update(success bool, elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	f := math.Exp(-elapsed.Seconds() / w.tau.Seconds())
	alpha := 1 - f

	w.weight = w.weight*f + alpha
	w.count = w.count*f + alpha

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	w.reliability = w.reliability*f + alpha*outcome
}

// good reports whether this window alone has enough decayed evidence and a
// high enough decayed reliability to call the peer good.
func (w *window) good() bool {
	return w.count >= w.minCount && w.reliability >= w.minReliability
}

func (w *window) stat() WindowStat {
	return WindowStat{Weight: w.weight, Count: w.count, Reliability: w.reliability}
}
