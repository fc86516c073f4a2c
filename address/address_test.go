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
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTripV4(t *testing.T) {
	e, err := Parse("10.0.0.1:9333")
	require.NoError(t, err)
	require.Equal(t, FamilyV4, e.Family)
	require.Equal(t, "10.0.0.1:9333", e.String())
}

func TestParseRoundTripV6(t *testing.T) {
	e, err := Parse("[2001:db8::1]:9333")
	require.NoError(t, err)
	require.Equal(t, FamilyV6, e.Family)

	e2, err := Parse(e.String())
	require.NoError(t, err)
	require.Equal(t, e, e2)
}

func TestParseRoundTripOnion(t *testing.T) {
	var svc [10]byte
	for i := range svc {
		svc[i] = byte(i + 1)
	}
	e := NewOnion(svc, 9333)
	s := e.String()
	require.True(t, len(s) > 0)

	e2, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, e, e2)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-an-address")
	require.Error(t, err)
}

func TestFromNetIP(t *testing.T) {
	e, err := FromNetIP(net.ParseIP("192.168.1.1"), 8333)
	require.NoError(t, err)
	require.Equal(t, FamilyV4, e.Family)
	require.Equal(t, uint16(8333), e.Port)
}

func TestEncodeDecodePeerListRoundTrip(t *testing.T) {
	e1, _ := Parse("10.0.0.1:9333")
	e2, _ := Parse("[::1]:9333")
	list := []Endpoint{e1, e2}

	buf := EncodePeerList(list)
	decoded, err := DecodePeerList(buf)
	require.NoError(t, err)
	require.Equal(t, list, decoded)
}

func TestDecodePeerListTruncated(t *testing.T) {
	e1, _ := Parse("10.0.0.1:9333")
	buf := EncodePeerList([]Endpoint{e1})
	buf = buf[:len(buf)-1]

	decoded, err := DecodePeerList(buf)
	require.ErrorIs(t, err, ErrTruncated)
	require.Empty(t, decoded)
}

func TestDecodePeerListDiscardsOffendingTrailingEntry(t *testing.T) {
	e1, _ := Parse("10.0.0.1:9333")
	buf := EncodePeerList([]Endpoint{e1})

	badEntry := make([]byte, wireEntrySize)
	badEntry[0] = 0xFF // unknown family tag, but a full-size entry
	buf = append(buf, badEntry...)

	decoded, err := DecodePeerList(buf)
	require.Error(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, e1, decoded[0])
}

func TestParseServiceLabel(t *testing.T) {
	v, err := ParseServiceLabel("x400")
	require.NoError(t, err)
	require.Equal(t, uint64(0x400), v)
}

func TestParseServiceLabelRejectsLeadingZero(t *testing.T) {
	_, err := ParseServiceLabel("x0400")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseServiceLabelRejectsTooLong(t *testing.T) {
	_, err := ParseServiceLabel("x" + "1234567890123456" + "7")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseServiceLabelNotALabel(t *testing.T) {
	_, err := ParseServiceLabel("seed")
	require.ErrorIs(t, err, ErrNotAServiceLabel)
}

func TestSplitFirstLabel(t *testing.T) {
	first, rest := SplitFirstLabel("x400.seed.example.com.")
	require.Equal(t, "x400", first)
	require.Equal(t, "seed.example.com", rest)

	first, rest = SplitFirstLabel("seed.example.com.")
	require.Equal(t, "seed", first)
	require.Equal(t, "example.com", rest)
}
