// Copyright (c) 2021-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mysql

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/decred/agora/store"
	"github.com/decred/agora/unittest"
	"github.com/decred/agora/util"

	driver "github.com/go-sql-driver/mysql"
)

// newTestMySQL returns a mysql context that has been setup for testing along
// with the sql mocking context and a cleanup function. Invocation of the
// cleanup function should be deferred by the caller.
//
// The mysql context uses random nonces so that encryption does not require a
// database connection.
func newTestMySQL(t *testing.T) (*mysql, sqlmock.Sqlmock, func()) {
	t.Helper()

	// sqlmock defaults to using the expected SQL string as a regular
	// expression to match incoming query strings. The QueryMatcherEqual
	// overrides this default behavior and does a full case sensitive
	// match.
	opts := sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual)
	db, mock, err := sqlmock.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	cleanup := func() {
		defer db.Close()
	}

	s := &mysql{
		db: db,
	}
	s.getNonce = s.getTestNonce

	// Setup a random encryption key
	key, err := util.Random(32)
	if err != nil {
		t.Fatal(err)
	}
	copy(s.key[:], key)

	return s, mock, cleanup
}

func TestInsert(t *testing.T) {
	s, mock, cleanup := newTestMySQL(t)
	defer cleanup()

	// Setup the test data
	var (
		q = "INSERT INTO kv (k, v) VALUES (?, ?);"

		key   = "test-key"
		value = []byte("test-value")
	)

	// Test the duplicate key error path. The mysql server duplicate
	// entry error must be converted to a store ErrDuplicateKey.
	mock.ExpectBegin()
	mock.ExpectExec(q).
		WithArgs(key, value).
		WillReturnError(&driver.MySQLError{Number: errDuplicateEntry})
	mock.ExpectRollback()

	err := s.Insert(map[string][]byte{key: value}, false)
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("got err '%v', want '%v'", err, store.ErrDuplicateKey)
	}

	// Test the success path
	mock.ExpectBegin()
	mock.ExpectExec(q).
		WithArgs(key, value).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = s.Insert(map[string][]byte{key: value}, false)
	if err != nil {
		t.Error(err)
	}

	err = mock.ExpectationsWereMet()
	if err != nil {
		t.Error(err)
	}
}

func TestUpdate(t *testing.T) {
	s, mock, cleanup := newTestMySQL(t)
	defer cleanup()

	// Setup the test data
	var (
		qSelect = buildSelectQuery(1)
		qUpdate = "UPDATE kv SET v = ? WHERE k = ?;"

		key      = "test-key"
		oldValue = []byte("old-value")
		newValue = []byte("new-value")
	)

	// Test the not found error path. The existence check comes back
	// empty so the update must fail with a store ErrNotFound.
	mock.ExpectBegin()
	mock.ExpectQuery(qSelect).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"k", "v"}))
	mock.ExpectRollback()

	err := s.Update(map[string][]byte{key: newValue}, false)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got err '%v', want '%v'", err, store.ErrNotFound)
	}

	// Test the success path
	rows := sqlmock.NewRows([]string{"k", "v"}).AddRow(key, oldValue)
	mock.ExpectBegin()
	mock.ExpectQuery(qSelect).
		WithArgs(key).
		WillReturnRows(rows)
	mock.ExpectExec(qUpdate).
		WithArgs(newValue, key).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.Update(map[string][]byte{key: newValue}, false)
	if err != nil {
		t.Error(err)
	}

	err = mock.ExpectationsWereMet()
	if err != nil {
		t.Error(err)
	}
}

func TestGet(t *testing.T) {
	s, mock, cleanup := newTestMySQL(t)
	defer cleanup()

	// Setup the test data
	var (
		q = buildSelectQuery(1)

		key   = "test-key"
		value = []byte("test-value")
	)

	// Test the not found error path
	mock.ExpectQuery(q).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"k", "v"}))

	_, err := s.Get(key)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got err '%v', want '%v'", err, store.ErrNotFound)
	}

	// Test the success path
	rows := sqlmock.NewRows([]string{"k", "v"}).AddRow(key, value)
	mock.ExpectQuery(q).
		WithArgs(key).
		WillReturnRows(rows)

	b, err := s.Get(key)
	if err != nil {
		t.Error(err)
	}
	if string(b) != string(value) {
		t.Errorf("got '%s', want '%s'", b, value)
	}

	err = mock.ExpectationsWereMet()
	if err != nil {
		t.Error(err)
	}
}

func TestBuildSelectStatements(t *testing.T) {
	var (
		// sizeLimit is the max number of placeholders
		// that the function will include in a single
		// select statement.
		sizeLimit = 2

		// Test keys
		key1 = "key1"
		key2 = "key2"
		key3 = "key3"
		key4 = "key4"
	)
	var tests = []struct {
		name       string
		keys       []string
		statements []selectStatement
	}{
		{
			"one statement under the size limit",
			[]string{key1},
			[]selectStatement{
				{
					Query: buildSelectQuery(1),
					Args:  []interface{}{key1},
				},
			},
		},
		{
			"one statement at the size limit",
			[]string{key1, key2},
			[]selectStatement{
				{
					Query: buildSelectQuery(2),
					Args:  []interface{}{key1, key2},
				},
			},
		},
		{
			"second statement under the size limit",
			[]string{key1, key2, key3},
			[]selectStatement{
				{
					Query: buildSelectQuery(2),
					Args:  []interface{}{key1, key2},
				},
				{
					Query: buildSelectQuery(1),
					Args:  []interface{}{key3},
				},
			},
		},
		{
			"second statement at the size limit",
			[]string{key1, key2, key3, key4},
			[]selectStatement{
				{
					Query: buildSelectQuery(2),
					Args:  []interface{}{key1, key2},
				},
				{
					Query: buildSelectQuery(2),
					Args:  []interface{}{key3, key4},
				},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Run the test
			statements := buildSelectStatements(tc.keys, sizeLimit)

			// Verify the output
			diff := unittest.DeepEqual(statements, tc.statements)
			if diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestBuildPlaceholders(t *testing.T) {
	var tests = []struct {
		placeholders int
		output       string
	}{
		{0, "()"},
		{1, "(?)"},
		{3, "(?,?,?)"},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			output := buildPlaceholders(tc.placeholders)
			if output != tc.output {
				t.Errorf("got %v, want %v", output, tc.output)
			}
		})
	}
}
