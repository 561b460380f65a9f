// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package heap

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

type elem struct {
	Value  int
	Weight float64
}

func lessElem(a, b elem) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return a.Value < b.Value
}

func TestTopKFilter(t *testing.T) {
	// Test a partial filter
	a := NewTopKFilter[int](3, cmp.Less[int])
	a.Push(10)
	a.Push(20)
	a.Push(3)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, []int{3, 10, 20}, a.PopAll())
	assert.Zero(t, a.Len())
	// Test a full filter
	a = NewTopKFilter[int](3, cmp.Less[int])
	for _, x := range []int{10, 20, 30, 40, 2, 12, 67, 32} {
		a.Push(x)
	}
	assert.Equal(t, []int{32, 40, 67}, a.PopAll())
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilter[elem](3, lessElem)
	a.Push(elem{10, 2})
	a.Push(elem{20, 8})
	a.Push(elem{30, 2})
	a.Push(elem{40, 2})
	a.Push(elem{50, 1})
	assert.Equal(t, []elem{
		{Value: 30, Weight: 2},
		{Value: 40, Weight: 2},
		{Value: 20, Weight: 8},
	}, a.PopAll())
}

func TestTopKFilterEmpty(t *testing.T) {
	a := NewTopKFilter[int](0, cmp.Less[int])
	a.Push(1)
	assert.Empty(t, a.PopAll())
	a = NewTopKFilter[int](5, cmp.Less[int])
	assert.Empty(t, a.PopAll())
}
