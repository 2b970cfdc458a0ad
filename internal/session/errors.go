// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputNotFound         = errors.New("input not found")
	ErrIO                    = errors.New("i/o failure")
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")
	ErrVerificationFailed    = errors.New("output failed sort verification")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// Stage names a step of the session state machine.
type Stage string

const (
	StagePreflight Stage = "preflight"
	StageCleaning  Stage = "cleaning"
	StageSpilling  Stage = "spilling"
	StageMerging   Stage = "merging"
	StageVerifying Stage = "verifying"
	StageReSorting Stage = "resorting"
	StageDone      Stage = "done"
)

// StageError is returned for every fatal session failure. It names the stage
// and the files involved; the cause is reachable through errors.Is/As.
type StageError struct {
	Stage Stage
	Paths []string
	Err   error
}

func (e *StageError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Stage, strings.Join(e.Paths, ", "), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// VerificationError carries the line that broke ordering after the re-sort.
type VerificationError struct {
	Path           string
	FirstViolation int64
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s is out of order at line %d", ErrVerificationFailed, e.Path, e.FirstViolation)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

func stageErr(stage Stage, err error, paths ...string) error {
	return &StageError{Stage: stage, Paths: paths, Err: err}
}
