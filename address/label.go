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

package address

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNotAServiceLabel is returned by ParseServiceLabel when the label does
// not match the "x<HEX>" convention at all (the label is not a service-flag
// request, as opposed to a malformed one).
var ErrNotAServiceLabel = errors.New("address: not a service-flag label")

// maxServiceLabelDigits bounds the hex portion of a service-flag label to
// 16 digits (fits a uint64 flag set with no ambiguity).
const maxServiceLabelDigits = 16

// ParseServiceLabel parses the leading label of a query name against the
// "x<HEX>" convention: a non-empty hex string of at most 16 digits that
// does not begin with '0'. Returns the decoded 64-bit service flags.
//
// A label that starts with "x" but fails the hex/leading-zero/length rules
// returns ErrInvalidAddress rather than ErrNotAServiceLabel. The DNS
// responder treats either error the same way: the name does not match the
// zone and the query is answered NXDOMAIN.
func ParseServiceLabel(label string) (uint64, error) {
	if len(label) < 2 || (label[0] != 'x' && label[0] != 'X') {
		return 0, ErrNotAServiceLabel
	}
	hex := label[1:]
	if len(hex) == 0 || len(hex) > maxServiceLabelDigits {
		return 0, ErrInvalidAddress
	}
	if hex[0] == '0' {
		return 0, ErrInvalidAddress
	}
	if !isHex(hex) {
		return 0, ErrInvalidAddress
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, ErrInvalidAddress
	}
	return v, nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// SplitFirstLabel splits "first.rest.of.name" into ("first", "rest.of.name").
// If name has only one label, rest is "".
func SplitFirstLabel(name string) (first, rest string) {
	name = strings.TrimSuffix(name, ".")
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
