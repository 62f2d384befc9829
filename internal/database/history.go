package database

import (
	"context"
	"time"

	"crypto-alert-bot/internal/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RecordPrice appends a price sample for a token.
func (s *Store) RecordPrice(ctx context.Context, tokenName string, price decimal.Decimal, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_history (token_name, price, timestamp) VALUES (?, ?, ?);`,
		types.CanonicalToken(tokenName), price.String(), at.UTC())
	if err != nil {
		return storageErr("record price", err)
	}
	return nil
}

// GetPriceHistory returns samples for a token taken at or after since, oldest first.
func (s *Store) GetPriceHistory(ctx context.Context, tokenName string, since time.Time) ([]types.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_name, price, timestamp FROM price_history
		 WHERE token_name = ? AND timestamp >= ? ORDER BY timestamp, id;`,
		types.CanonicalToken(tokenName), since.UTC())
	if err != nil {
		return nil, storageErr("query price history", err)
	}
	defer rows.Close()

	var points []types.PricePoint
	for rows.Next() {
		var p types.PricePoint
		if err := rows.Scan(&p.TokenName, &p.Price, &p.Timestamp); err != nil {
			return nil, storageErr("query price history", errors.Wrap(err, "failed to scan row"))
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query price history", err)
	}
	return points, nil
}

// PrunePriceHistory deletes samples older than before and returns how many went.
func (s *Store) PrunePriceHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE timestamp < ?;`, before.UTC())
	if err != nil {
		return 0, storageErr("prune price history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("prune price history", err)
	}
	return n, nil
}
