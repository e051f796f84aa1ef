// Copyright (c) 2017-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"net/http"

	"github.com/gorilla/schema"
)

// ParseGetParams parses the query params from the GET request into a struct.
// This method requires the struct type to be defined with `schema` tags.
func ParseGetParams(r *http.Request, dst interface{}) error {
	err := r.ParseForm()
	if err != nil {
		return err
	}

	return schema.NewDecoder().Decode(dst, r.Form)
}
