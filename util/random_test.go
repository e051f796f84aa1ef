// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util_test

import (
	"bytes"
	"testing"

	"github.com/decred/agora/util"
)

func TestRandomLength(t *testing.T) {
	for _, n := range []int{1, 8, 32, 64} {
		b, err := util.Random(n)
		if err != nil {
			t.Fatal(err)
		}
		if len(b) != n {
			t.Errorf("got %v bytes, want %v", len(b), n)
		}
	}
}

func TestRandomNotRepeated(t *testing.T) {
	// Two 32 byte reads from a CSPRNG colliding means something is very
	// wrong.
	b1, err := util.Random(32)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := util.Random(32)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(b1, b2) {
		t.Fatal("random reads returned identical bytes")
	}
}
