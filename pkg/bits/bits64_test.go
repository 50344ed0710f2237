// Copyright 2025 The Enclaverun Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bits

import (
	"reflect"
	"testing"
)

func TestMask64(t *testing.T) {
	for _, tc := range []struct {
		is   []int
		want uint64
	}{
		{nil, 0},
		{[]int{0}, 0x1},
		{[]int{0, 1, 2}, 0x7},
		{[]int{5, 63}, 1<<5 | 1<<63},
	} {
		if got := Mask64(tc.is...); got != tc.want {
			t.Errorf("Mask64(%v) = %#x, want %#x", tc.is, got, tc.want)
		}
	}
}

func TestIsOn64(t *testing.T) {
	if !IsOn64(0xf0, 0x30) {
		t.Errorf("IsOn64(0xf0, 0x30) = false, want true")
	}
	if IsOn64(0xf0, 0x101) {
		t.Errorf("IsOn64(0xf0, 0x101) = true, want false")
	}
	if !IsAnyOn64(0xf0, 0x101<<4) {
		t.Errorf("IsAnyOn64(0xf0, 0x1010) = false, want true")
	}
}

func TestForEachSetBit64(t *testing.T) {
	var got []int
	ForEachSetBit64(Mask64(1, 7, 63), func(i int) {
		got = append(got, i)
	})
	if want := []int{1, 7, 63}; !reflect.DeepEqual(got, want) {
		t.Errorf("ForEachSetBit64 visited %v, want %v", got, want)
	}
}
