// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

// Argon2Params describes the argon2id key derivation parameters. The full
// parameter set must be stored alongside any data that a derived key
// protects since every parameter is required to re-derive the key.
type Argon2Params struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
	KeyLen  uint32 `json:"keylen"`
	Salt    []byte `json:"salt"`
}

// NewArgon2Params returns an Argon2Params with sane defaults and a freshly
// generated random salt.
func NewArgon2Params() Argon2Params {
	salt, err := Random(16)
	if err != nil {
		// Entropy is unavailable. Nothing sane can be done.
		panic(err)
	}
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024, // KiB
		Threads: 4,
		KeyLen:  32,
		Salt:    salt,
	}
}
