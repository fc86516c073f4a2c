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

package stats

import (
	"errors"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

var (
	errWrongAmountListeners = errors.New("stats: wrong amount of listeners is up")
	errWrongAmountWorkers   = errors.New("stats: wrong amount of workers is up")
)

// SimpleChecker is a direct generalization of
// responder/checker.SimpleChecker: track expected vs. actual
// listener/worker counts and fail Check when they diverge, which the
// orchestrator treats as a reason to cancel the root context.
type SimpleChecker struct {
	ExpectedListeners int64
	realListeners     int64

	ExpectedWorkers int64
	realWorkers     int64
}

func (s *SimpleChecker) IncListeners() { atomic.AddInt64(&s.realListeners, 1) }
func (s *SimpleChecker) DecListeners() { atomic.AddInt64(&s.realListeners, -1) }
func (s *SimpleChecker) IncWorkers()   { atomic.AddInt64(&s.realWorkers, 1) }
func (s *SimpleChecker) DecWorkers()   { atomic.AddInt64(&s.realWorkers, -1) }

// Check verifies the expected listener and worker counts are still alive.
func (s *SimpleChecker) Check() error {
	if err := s.checkListeners(); err != nil {
		return err
	}
	return s.checkWorkers()
}

func (s *SimpleChecker) checkListeners() error {
	log.Debug("[checker] checking listeners")
	if atomic.LoadInt64(&s.ExpectedListeners) != atomic.LoadInt64(&s.realListeners) {
		return errWrongAmountListeners
	}
	return nil
}

func (s *SimpleChecker) checkWorkers() error {
	log.Debug("[checker] checking workers")
	if atomic.LoadInt64(&s.ExpectedWorkers) != atomic.LoadInt64(&s.realWorkers) {
		return errWrongAmountWorkers
	}
	return nil
}
