// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package v1

import (
	"testing"

	"github.com/decred/agora/unittest"
)

func TestMaps(t *testing.T) {
	err := unittest.TestGenericConstMap(ErrorStatus, uint64(ErrorStatusLast))
	if err != nil {
		t.Fatalf("ErrorStatus: %v", err)
	}
	err = unittest.TestGenericConstMap(PropStatus, uint64(PropStatusLast))
	if err != nil {
		t.Fatalf("PropStatus: %v", err)
	}
	err = unittest.TestGenericConstMap(VoteMechanism, uint64(VoteMechanismLast))
	if err != nil {
		t.Fatalf("VoteMechanism: %v", err)
	}
}
