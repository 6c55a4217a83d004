package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Slots returns every slot with its value list, sorted by name.
func (s *Store) Slots(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM slots ORDER BY name, value
	`)
	if err != nil {
		return nil, fmt.Errorf("profile: list slots: %w", err)
	}
	defer rows.Close()

	slots := make(map[string][]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("profile: scan slot: %w", err)
		}
		slots[name] = append(slots[name], value)
	}
	return slots, rows.Err()
}

// SlotValues returns the values of one slot.
func (s *Store) SlotValues(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM slots WHERE name = ? ORDER BY value
	`, name)
	if err != nil {
		return nil, fmt.Errorf("profile: list slot %s: %w", name, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("profile: scan slot value: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NotFoundError{Entity: "slot", Key: name}
	}
	return values, nil
}

// ReplaceSlot atomically replaces a slot's value list. An empty list deletes
// the slot.
func (s *Store) ReplaceSlot(ctx context.Context, name string, values []string) error {
	if s.readOnly {
		return fmt.Errorf("profile: replace slot: store opened read-only")
	}

	deduped := dedupe(values)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, name); err != nil {
			return fmt.Errorf("profile: clear slot %s: %w", name, err)
		}
		for _, value := range deduped {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO slots (name, value) VALUES (?, ?)
			`, name, value); err != nil {
				return fmt.Errorf("profile: insert slot %s value: %w", name, err)
			}
		}
		return nil
	})
}

// DeleteSlot removes a slot entirely.
func (s *Store) DeleteSlot(ctx context.Context, name string) error {
	if s.readOnly {
		return fmt.Errorf("profile: delete slot: store opened read-only")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("profile: delete slot %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return NotFoundError{Entity: "slot", Key: name}
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
