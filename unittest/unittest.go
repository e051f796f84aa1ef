// Copyright (c) 2021-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unittest

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-test/deep"
	"github.com/pkg/errors"
)

// TestGenericConstMap tests a map of a constant type, such as an error code
// or status code map, and verifies that the codes are consecutive and that
// each one is represented in the human readable map. This function is for
// unit tests only.
func TestGenericConstMap(constMap interface{}, lastEntry uint64) error {
	if reflect.TypeOf(constMap).Kind() != reflect.Map {
		return errors.Errorf("constMap not a map: %T", constMap)
	}
	val := reflect.ValueOf(constMap)

	leftover := make(map[uint64]struct{}, len(val.MapKeys()))
	for i := uint64(0); i < uint64(len(val.MapKeys())); i++ {
		leftover[i] = struct{}{}
	}
	for _, mapKey := range val.MapKeys() {
		var key uint64
		switch mapKey.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
			reflect.Uint64:
			key = mapKey.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
			reflect.Int64:
			key = uint64(mapKey.Int())
		default:
			return errors.Errorf("unsupported key type: %v",
				mapKey.Kind())
		}
		delete(leftover, key)
	}
	if len(leftover) != 0 {
		return errors.Errorf("leftover length not 0: %v", leftover)
	}
	if len(val.MapKeys()) != int(lastEntry) {
		return errors.Errorf("someone added a code without adding a "+
			"human readable description. Got %v, want %v",
			len(val.MapKeys()), lastEntry)
	}

	return nil
}

// DeepEqual returns an empty string if the two provided values are deeply
// equal. If they are not, a newline separated diff of the differences is
// returned.
func DeepEqual(x, y interface{}) string {
	diff := deep.Equal(x, y)
	if diff == nil {
		return ""
	}
	return fmt.Sprintf("got/want diff:\n%v", strings.Join(diff, "\n"))
}
