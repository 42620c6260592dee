// Package cache is the Cache Index: a durable memoization table mapping
// (block instance, settings, ordered inputs) to the output UUID produced
// for that key, with self-healing against a vanished backing file.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Key identifies a cache row: the triple that forms the cache key.
type Key struct {
	IdBlock         int
	ParametersJson  json.RawMessage
	InputUuidsJson  json.RawMessage
}

// CacheIndex exposes the cache's core operations: lookup, insert,
// deleteByUuid, listUuidsForBlocks.
type CacheIndex interface {

	// Lookup returns the output uuid for a key, or ok=false if absent.
	Lookup(key Key) (uuid string, ok bool, err error)

	// Insert records a successful execution's output under key.
	Insert(uuid string, key Key) error

	// DeleteByUuid removes a row by its output uuid. Idempotent: deleting
	// an absent row is not an error.
	DeleteByUuid(uuid string) error

	// ListUuidsForBlocks returns every output uuid cached for any of the
	// given block instance ids, for a downstream-closure invalidation
	// sweep.
	ListUuidsForBlocks(idBlocks []int) ([]string, error)

	// LatestUuidForBlock returns the most recently inserted output uuid
	// cached for a block instance, or ok=false if the block has never
	// been evaluated.
	LatestUuidForBlock(idBlock int) (uuid string, ok bool, err error)
}

// NewCacheIndex builds a CacheIndex backed by the given database handle.
func NewCacheIndex(db *sql.DB) CacheIndex {
	return &cacheIndex{db: db}
}

type cacheIndex struct {
	db *sql.DB
}

// EncodeInputUuids canonically serializes an ordered input-uuid list for
// use as part of a cache Key.
func EncodeInputUuids(uuids []string) (json.RawMessage, error) {

	if uuids == nil {
		uuids = []string{}
	}

	b, err := json.Marshal(uuids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input uuids for cache key: %v", err)
	}

	return b, nil
}

func (c *cacheIndex) Lookup(key Key) (string, bool, error) {

	row := c.db.QueryRow(`
		SELECT uuid FROM image_cache
		WHERE idblock = ? AND parameters_json = ? AND input_uuids_json = ?`,
		key.IdBlock, string(key.ParametersJson), string(key.InputUuidsJson))

	var uuid string
	if err := row.Scan(&uuid); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query cache index: %v", err)
	}

	return uuid, true, nil
}

func (c *cacheIndex) Insert(uuid string, key Key) error {

	_, err := c.db.Exec(`
		INSERT INTO image_cache (uuid, idblock, parameters_json, input_uuids_json, creation_timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		uuid, key.IdBlock, string(key.ParametersJson), string(key.InputUuidsJson), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert cache row for uuid %s: %v", uuid, err)
	}

	return nil
}

func (c *cacheIndex) DeleteByUuid(uuid string) error {

	if _, err := c.db.Exec(`DELETE FROM image_cache WHERE uuid = ?`, uuid); err != nil {
		return fmt.Errorf("failed to delete cache row for uuid %s: %v", uuid, err)
	}

	return nil
}

func (c *cacheIndex) LatestUuidForBlock(idBlock int) (string, bool, error) {

	row := c.db.QueryRow(`
		SELECT uuid FROM image_cache
		WHERE idblock = ?
		ORDER BY creation_timestamp DESC
		LIMIT 1`, idBlock)

	var uuid string
	if err := row.Scan(&uuid); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query latest cache row for block %d: %v", idBlock, err)
	}

	return uuid, true, nil
}

func (c *cacheIndex) ListUuidsForBlocks(idBlocks []int) ([]string, error) {

	if len(idBlocks) == 0 {
		return nil, nil
	}

	query := `SELECT uuid FROM image_cache WHERE idblock IN (` + placeholders(len(idBlocks)) + `)`

	args := make([]any, len(idBlocks))
	for i, id := range idBlocks {
		args[i] = id
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache rows for blocks %v: %v", idBlocks, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %v", err)
		}
		out = append(out, uuid)
	}

	return out, rows.Err()
}

func placeholders(n int) string {
	s := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			s = append(s, ',')
		}
		s = append(s, '?')
	}
	return string(s)
}
