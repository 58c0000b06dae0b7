package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

// StoreValue creates or overwrites the entry for key and commits.
func (s *Store) StoreValue(ctx context.Context, key string, value models.Value) error {
	if err := models.ValidateKey(key); err != nil {
		return err
	}
	if !value.Valid() {
		return models.ErrUnsupportedValueType
	}

	return s.submit(ctx, "StoreValue", func(tx *sql.Tx) error {
		return storeValueTx(tx, key, value)
	})
}

// storeValueTx looks the key up and updates the first match in place, or
// inserts a new row. Running inside the writer goroutine makes the
// read-then-write atomic with respect to other writers of this store.
func storeValueTx(tx *sql.Tx, key string, value models.Value) error {
	var id int64
	err := tx.QueryRow(`SELECT id FROM KeyValueStore WHERE key = ? ORDER BY id LIMIT 1`, key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(`
			INSERT INTO KeyValueStore (key, value_type, value)
			VALUES (?, ?, ?)
		`, key, string(value.Type()), value.Encode())
		if err != nil {
			return fmt.Errorf("inserting value %s: %w", key, err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("looking up key %s: %w", key, err)
	}

	_, err = tx.Exec(`
		UPDATE KeyValueStore SET value_type = ?, value = ?
		WHERE id = ?
	`, string(value.Type()), value.Encode(), id)
	if err != nil {
		return fmt.Errorf("updating value %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. A missing key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	return s.submit(ctx, "DeleteValue", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM KeyValueStore WHERE key = ?`, key); err != nil {
			return fmt.Errorf("deleting value %s: %w", key, err)
		}
		return nil
	})
}

// GetValue returns the value stored for key. Datetimes come back in UTC.
func (s *Store) GetValue(ctx context.Context, key string) (models.Value, bool, error) {
	var typ, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_type, value FROM KeyValueStore
		WHERE key = ?
		ORDER BY id LIMIT 1
	`, key).Scan(&typ, &payload)

	if errors.Is(err, sql.ErrNoRows) {
		return models.Value{}, false, nil
	}
	if err != nil {
		return models.Value{}, false, fmt.Errorf("querying value %s: %w", key, err)
	}

	v, err := models.DecodeValue(typ, payload)
	if err != nil {
		return models.Value{}, false, fmt.Errorf("key %s: %w", key, err)
	}
	return v, true, nil
}

// getTyped fetches key only when it is stored with the wanted type.
func (s *Store) getTyped(ctx context.Context, key string, want models.ValueType) (models.Value, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM KeyValueStore
		WHERE key = ? AND value_type = ?
		ORDER BY id LIMIT 1
	`, key, string(want)).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return models.Value{}, false, nil
	}
	if err != nil {
		return models.Value{}, false, fmt.Errorf("querying value %s: %w", key, err)
	}

	v, err := models.DecodeValue(string(want), payload)
	if err != nil {
		return models.Value{}, false, fmt.Errorf("key %s: %w", key, err)
	}
	return v, true, nil
}

// GetStringValue returns key's string, or ok=false if it is missing or not
// a string.
func (s *Store) GetStringValue(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.getTyped(ctx, key, models.TypeString)
	if !ok || err != nil {
		return "", false, err
	}
	str, _ := v.AsString()
	return str, true, nil
}

// GetDatetimeValue returns key's timestamp in UTC, or ok=false if it is
// missing or not a datetime.
func (s *Store) GetDatetimeValue(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := s.getTyped(ctx, key, models.TypeDatetime)
	if !ok || err != nil {
		return time.Time{}, false, err
	}
	t, _ := v.AsDatetime()
	return t, true, nil
}

// GetFloatValue returns key's float, or ok=false if it is missing or not a
// float.
func (s *Store) GetFloatValue(ctx context.Context, key string) (float64, bool, error) {
	v, ok, err := s.getTyped(ctx, key, models.TypeFloat)
	if !ok || err != nil {
		return 0, false, err
	}
	f, _ := v.AsFloat()
	return f, true, nil
}

// GetIntValue returns key's integer, or ok=false if it is missing or not an
// int.
func (s *Store) GetIntValue(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := s.getTyped(ctx, key, models.TypeInt)
	if !ok || err != nil {
		return 0, false, err
	}
	i, _ := v.AsInt()
	return i, true, nil
}

// ListValues returns every entry ordered by key.
func (s *Store) ListValues(ctx context.Context) ([]models.KeyValueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value_type, value FROM KeyValueStore
		ORDER BY key, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying values: %w", err)
	}
	defer rows.Close()

	var entries []models.KeyValueEntry
	seen := make(map[string]struct{})
	for rows.Next() {
		var key, typ, payload string
		if err := rows.Scan(&key, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		v, err := models.DecodeValue(typ, payload)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		entries = append(entries, models.KeyValueEntry{Key: key, Value: v})
	}

	return entries, rows.Err()
}
