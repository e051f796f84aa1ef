// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/decred/agora/store"
	"github.com/decred/agora/util"
	"github.com/pkg/errors"

	driver "github.com/go-sql-driver/mysql"
)

const (
	// Database options
	connTimeout     = 1 * time.Minute
	connMaxLifetime = 1 * time.Minute
	maxOpenConns    = 0 // 0 is unlimited
	maxIdleConns    = 100

	// Database table names
	tableNameKeyValue = "kv"
	tableNameNonce    = "nonce"

	// errDuplicateEntry is the MySQL server error number that is
	// returned when an insert violates a unique constraint.
	errDuplicateEntry = 1062

	// selectSizeLimit is the max number of placeholders that will be
	// included in a single select statement.
	selectSizeLimit = 1000
)

// tableKeyValue defines the key-value table.
const tableKeyValue = `
  k VARCHAR(255) NOT NULL PRIMARY KEY,
  v LONGBLOB NOT NULL
`

// tableNonce defines the table used to track the encryption nonce.
const tableNonce = `
  n BIGINT PRIMARY KEY AUTO_INCREMENT
`

var (
	_ store.BlobKV = (*mysql)(nil)
)

// mysql implements the store BlobKV interface using a mysql driver.
type mysql struct {
	shutdown uint64
	db       *sql.DB
	getNonce func(context.Context, *sql.Tx) ([24]byte, error)
	key      [32]byte
}

func ctxWithTimeout() (context.Context, func()) {
	return context.WithTimeout(context.Background(), connTimeout)
}

func (s *mysql) isShutdown() bool {
	return atomic.LoadUint64(&s.shutdown) != 0
}

// querier describes the query method that is present on both the sql DB
// context and the sql Tx context. This allows the same code to be used for
// individual queries and for queries that are part of a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// buildPlaceholders returns a parenthesized list of sql placeholder
// parameters (?), one for each argument of a prepared statement.
//
// Ex 3 placeholders: "(?,?,?)"
func buildPlaceholders(placeholders int) string {
	var b strings.Builder
	b.WriteString("(")
	for i := 0; i < placeholders; i++ {
		b.WriteString("?")
		// Don't add a comma on the last one
		if i < placeholders-1 {
			b.WriteString(",")
		}
	}
	b.WriteString(")")
	return b.String()
}

// buildSelectQuery returns a query that selects entries from the key-value
// table. A placeholder parameter is included for each key being requested.
//
// Ex 3 keys: "SELECT k, v FROM kv WHERE k IN (?,?,?);"
func buildSelectQuery(placeholders int) string {
	return fmt.Sprintf("SELECT k, v FROM kv WHERE k IN %v;",
		buildPlaceholders(placeholders))
}

// selectStatement contains a select statement query along with the arguments
// for the query's placeholder parameters.
type selectStatement struct {
	Query string
	Args  []interface{}
}

// buildSelectStatements builds the select statements for the provided keys.
// The keys are chunked so that a single select statement will never contain
// more placeholder parameters than the provided size limit.
func buildSelectStatements(keys []string, sizeLimit int) []selectStatement {
	statements := make([]selectStatement, 0, (len(keys)/sizeLimit)+1)
	var startIdx int
	for startIdx < len(keys) {
		endIdx := startIdx + sizeLimit
		if endIdx > len(keys) {
			endIdx = len(keys)
		}
		chunk := keys[startIdx:endIdx]
		args := make([]interface{}, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}
		statements = append(statements, selectStatement{
			Query: buildSelectQuery(len(chunk)),
			Args:  args,
		})
		startIdx = endIdx
	}
	return statements
}

// insert inserts the provided blobs into the key-value table as new entries.
func (s *mysql) insert(ctx context.Context, tx *sql.Tx, blobs map[string][]byte, encrypt bool) error {
	// Encrypt blobs
	if encrypt {
		for k, v := range blobs {
			e, err := s.encrypt(ctx, tx, v)
			if err != nil {
				return errors.WithStack(err)
			}
			blobs[k] = e
		}
	}

	// Save blobs
	for k, v := range blobs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO kv (k, v) VALUES (?, ?);", k, v)
		if err != nil {
			var e *driver.MySQLError
			if errors.As(err, &e) && e.Number == errDuplicateEntry {
				return store.ErrDuplicateKey
			}
			return errors.WithStack(err)
		}
	}

	return nil
}

// update updates the provided blobs in the key-value table.
func (s *mysql) update(ctx context.Context, tx *sql.Tx, blobs map[string][]byte, encrypt bool) error {
	// Verify that all of the keys exist. MySQL reports zero affected
	// rows for both missing entries and unchanged values, so the
	// affected row count cannot be used for this.
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	existing, err := s.getBatch(ctx, tx, keys)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, ok := existing[k]; !ok {
			return store.ErrNotFound
		}
	}

	// Encrypt blobs
	if encrypt {
		for k, v := range blobs {
			e, err := s.encrypt(ctx, tx, v)
			if err != nil {
				return errors.WithStack(err)
			}
			blobs[k] = e
		}
	}

	// Save blobs
	for k, v := range blobs {
		_, err := tx.ExecContext(ctx,
			"UPDATE kv SET v = ? WHERE k = ?;", v, k)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// del deletes the provided keys from the key-value table.
func (s *mysql) del(ctx context.Context, tx *sql.Tx, keys []string) error {
	q := fmt.Sprintf("DELETE FROM kv WHERE k IN %v;",
		buildPlaceholders(len(keys)))
	args := make([]interface{}, len(keys))
	for i, v := range keys {
		args[i] = v
	}
	_, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// getBatch returns blobs from the key-value table for the provided keys. An
// entry will not exist in the returned map for any blobs that are not found.
func (s *mysql) getBatch(ctx context.Context, q querier, keys []string) (map[string][]byte, error) {
	// Lookup blobs. The keys are chunked so that a single select
	// statement never exceeds the placeholder size limit.
	statements := buildSelectStatements(keys, selectSizeLimit)
	reply := make(map[string][]byte, len(keys))
	for _, st := range statements {
		rows, err := q.QueryContext(ctx, st.Query, st.Args...)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		for rows.Next() {
			var k string
			var v []byte
			err = rows.Scan(&k, &v)
			if err != nil {
				rows.Close()
				return nil, errors.WithStack(err)
			}
			reply[k] = v
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	// Decrypt data blobs
	for k, v := range reply {
		encrypted := isEncrypted(v)
		log.Tracef("Blob is encrypted: %v", encrypted)
		if !encrypted {
			continue
		}
		b, _, err := s.decrypt(v)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		reply[k] = b
	}

	return reply, nil
}

// Insert inserts a new entry into the key-value store for each of the
// provided key-value pairs. This operation is performed atomically.
//
// An ErrDuplicateKey is returned if a provided key already exists in the
// key-value store.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) Insert(blobs map[string][]byte, encrypt bool) error {
	log.Tracef("Insert: %v blobs", len(blobs))

	if s.isShutdown() {
		return store.ErrShutdown
	}

	ctx, cancel := ctxWithTimeout()
	defer cancel()

	// Start transaction
	opts := &sql.TxOptions{
		Isolation: sql.LevelDefault,
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	// Save blobs
	err = s.insert(ctx, tx, blobs, encrypt)
	if err != nil {
		// Attempt to roll back the transaction
		if err2 := tx.Rollback(); err2 != nil {
			// We're in trouble!
			e := fmt.Sprintf("insert: %v, unable to rollback: %v", err, err2)
			panic(e)
		}
		return err
	}

	// Commit transaction
	err = tx.Commit()
	if err != nil {
		return errors.WithStack(err)
	}

	log.Debugf("Inserted blobs (%v) into store", len(blobs))

	return nil
}

// Update updates the provided key-value pairs in the store. This operation
// is performed atomically.
//
// An ErrNotFound is returned if the caller attempts to update an entry that
// does not exist.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) Update(blobs map[string][]byte, encrypt bool) error {
	log.Tracef("Update: %v blobs", len(blobs))

	if s.isShutdown() {
		return store.ErrShutdown
	}

	ctx, cancel := ctxWithTimeout()
	defer cancel()

	// Start transaction
	opts := &sql.TxOptions{
		Isolation: sql.LevelDefault,
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	// Save blobs
	err = s.update(ctx, tx, blobs, encrypt)
	if err != nil {
		// Attempt to roll back the transaction
		if err2 := tx.Rollback(); err2 != nil {
			// We're in trouble!
			e := fmt.Sprintf("update: %v, unable to rollback: %v", err, err2)
			panic(e)
		}
		return err
	}

	// Commit transaction
	err = tx.Commit()
	if err != nil {
		return errors.WithStack(err)
	}

	log.Debugf("Updated blobs (%v) in store", len(blobs))

	return nil
}

// Del deletes the provided blobs from the store. This operation is performed
// atomically.
//
// Keys that do not correspond to blob entries are ignored. An error IS NOT
// returned.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) Del(keys []string) error {
	log.Tracef("Del: %v", keys)

	if s.isShutdown() {
		return store.ErrShutdown
	}

	ctx, cancel := ctxWithTimeout()
	defer cancel()

	// Start transaction
	opts := &sql.TxOptions{
		Isolation: sql.LevelDefault,
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	// Delete blobs
	err = s.del(ctx, tx, keys)
	if err != nil {
		// Attempt to roll back the transaction
		if err2 := tx.Rollback(); err2 != nil {
			// We're in trouble!
			e := fmt.Sprintf("del: %v, unable to rollback: %v", err, err2)
			panic(e)
		}
		return err
	}

	// Commit transaction
	err = tx.Commit()
	if err != nil {
		return errors.WithStack(err)
	}

	log.Debugf("Deleted blobs (%v) from store", len(keys))

	return nil
}

// Get returns the blob for the provided key.
//
// An ErrNotFound error is returned if the key does not correspond to an
// entry.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) Get(key string) ([]byte, error) {
	log.Tracef("Get: %v", key)

	if s.isShutdown() {
		return nil, store.ErrShutdown
	}

	ctx, cancel := ctxWithTimeout()
	defer cancel()

	blobs, err := s.getBatch(ctx, s.db, []string{key})
	if err != nil {
		return nil, err
	}
	b, ok := blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}

	return b, nil
}

// GetBatch returns the blobs for the provided keys.
//
// An entry will not exist in the returned map if for any blobs that are not
// found. It is the responsibility of the caller to ensure a blob was
// returned for all provided keys. An error is not returned.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) GetBatch(keys []string) (map[string][]byte, error) {
	log.Tracef("GetBatch: %v", keys)

	if s.isShutdown() {
		return nil, store.ErrShutdown
	}

	ctx, cancel := ctxWithTimeout()
	defer cancel()

	return s.getBatch(ctx, s.db, keys)
}

// Close closes the store connection.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) Close() {
	log.Tracef("Close")

	atomic.AddUint64(&s.shutdown, 1)

	// Zero the encryption key
	util.Zero(s.key[:])

	// Close mysql connection
	s.db.Close()
}

// New returns a new mysql that is connected to the provided database and
// that has derived its blob encryption key from the provided password.
func New(host, user, password, dbname string) (*mysql, error) {
	// The password is required to derive the encryption key
	if password == "" {
		return nil, errors.Errorf("password not provided")
	}

	// Connect to database
	log.Infof("MySQL host: %v:[password]@tcp(%v)/%v", user, host, dbname)

	h := fmt.Sprintf("%v:%v@tcp(%v)/%v", user, password, host, dbname)
	db, err := sql.Open("mysql", h)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Setup database options
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// Verify database connection
	err = db.Ping()
	if err != nil {
		return nil, errors.Errorf("db ping: %v", err)
	}

	// Setup key-value table
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (%v)`,
		tableNameKeyValue, tableKeyValue)
	_, err = db.Exec(q)
	if err != nil {
		return nil, errors.Errorf("create kv table: %v", err)
	}

	// Setup nonce table
	q = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (%v)`,
		tableNameNonce, tableNonce)
	_, err = db.Exec(q)
	if err != nil {
		return nil, errors.Errorf("create nonce table: %v", err)
	}

	// Setup mysql context
	s := &mysql{
		db: db,
	}
	s.getNonce = s.getDbNonce

	// Derive encryption key from password. Key is set in argon2idKey
	err = s.deriveEncryptionKey(password)
	if err != nil {
		return nil, errors.Errorf("deriveEncryptionKey: %v", err)
	}

	return s, nil
}
