package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Sentences returns every intent with its template list.
func (s *Store) Sentences(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT intent, template FROM sentences ORDER BY intent, template
	`)
	if err != nil {
		return nil, fmt.Errorf("profile: list sentences: %w", err)
	}
	defer rows.Close()

	sentences := make(map[string][]string)
	for rows.Next() {
		var intent, template string
		if err := rows.Scan(&intent, &template); err != nil {
			return nil, fmt.Errorf("profile: scan sentence: %w", err)
		}
		sentences[intent] = append(sentences[intent], template)
	}
	return sentences, rows.Err()
}

// ReplaceSentences atomically replaces an intent's template list. An empty
// list deletes the intent.
func (s *Store) ReplaceSentences(ctx context.Context, intent string, templates []string) error {
	if s.readOnly {
		return fmt.Errorf("profile: replace sentences: store opened read-only")
	}

	deduped := dedupe(templates)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sentences WHERE intent = ?`, intent); err != nil {
			return fmt.Errorf("profile: clear sentences for %s: %w", intent, err)
		}
		for _, template := range deduped {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sentences (intent, template) VALUES (?, ?)
			`, intent, template); err != nil {
				return fmt.Errorf("profile: insert sentence for %s: %w", intent, err)
			}
		}
		return nil
	})
}

// DeleteSentences removes an intent's templates entirely.
func (s *Store) DeleteSentences(ctx context.Context, intent string) error {
	if s.readOnly {
		return fmt.Errorf("profile: delete sentences: store opened read-only")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM sentences WHERE intent = ?`, intent)
	if err != nil {
		return fmt.Errorf("profile: delete sentences for %s: %w", intent, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return NotFoundError{Entity: "sentences", Key: intent}
	}
	return nil
}
