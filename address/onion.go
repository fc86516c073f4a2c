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
	"encoding/base32"
	"fmt"
	"strings"
)

// onionEncoding is the base32 alphabet Tor uses for .onion service ids,
// lowercase and unpadded.
var onionEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// onionBase32 renders a 10-byte onion service id as the 16-character
// lowercase label used in a v2 .onion hostname.
func onionBase32(svc []byte) string {
	return strings.ToLower(onionEncoding.EncodeToString(svc))
}

// onionUnbase32 parses the 16-character label of a v2 .onion hostname back
// into its 10-byte service id.
func onionUnbase32(label string) ([10]byte, error) {
	var out [10]byte
	decoded, err := onionEncoding.DecodeString(strings.ToUpper(label))
	if err != nil {
		return out, fmt.Errorf("%w: bad onion label %q: %v", ErrInvalidAddress, label, err)
	}
	if len(decoded) != 10 {
		return out, fmt.Errorf("%w: onion label %q decodes to %d bytes, want 10", ErrInvalidAddress, label, len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}
