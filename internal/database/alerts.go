package database

import (
	"context"
	"database/sql"
	"time"

	"crypto-alert-bot/internal/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const alertColumns = `id, token_name, token_contract, alert_type, target_price, is_active, created_at, last_triggered, trigger_count`

// AddAlert validates and stores a new active alert, returning its id.
func (s *Store) AddAlert(ctx context.Context, tokenName string, alertType types.AlertType, targetPrice decimal.Decimal, tokenContract string) (int64, error) {
	token := types.CanonicalToken(tokenName)
	if token == "" {
		return 0, &ValidationError{Field: "token_name", Reason: "must not be empty"}
	}
	if !alertType.Valid() {
		return 0, &ValidationError{Field: "alert_type", Reason: "must be 'above' or 'below'"}
	}
	if !targetPrice.IsPositive() {
		return 0, &ValidationError{Field: "target_price", Reason: "must be greater than zero"}
	}

	var contract sql.NullString
	if tokenContract != "" {
		contract = sql.NullString{String: tokenContract, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO alerts (token_name, token_contract, alert_type, target_price, is_active, created_at)
	VALUES (?, ?, ?, ?, 1, ?);`,
		token, contract, string(alertType), targetPrice.String(), time.Now().UTC())
	if err != nil {
		return 0, storageErr("insert alert", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert alert", err)
	}

	log.WithFields(log.Fields{"alert_id": id, "token": token}).
		Infof("Alert created: %s %s %s", token, alertType, targetPrice)
	return id, nil
}

// GetActiveAlerts returns every active alert ordered by id.
func (s *Store) GetActiveAlerts(ctx context.Context) ([]types.Alert, error) {
	alerts, err := s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts WHERE is_active = 1 ORDER BY id;`)
	if err != nil {
		return nil, storageErr("query active alerts", err)
	}
	return alerts, nil
}

// GetAlertsByToken returns all alerts for a token, newest first.
func (s *Store) GetAlertsByToken(ctx context.Context, tokenName string) ([]types.Alert, error) {
	alerts, err := s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE token_name = ? ORDER BY created_at DESC, id DESC;`,
		types.CanonicalToken(tokenName))
	if err != nil {
		return nil, storageErr("query alerts by token", err)
	}
	return alerts, nil
}

// GetAllAlerts returns every alert ordered by token, newest first.
func (s *Store) GetAllAlerts(ctx context.Context) ([]types.Alert, error) {
	alerts, err := s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY token_name, created_at DESC, id DESC;`)
	if err != nil {
		return nil, storageErr("query all alerts", err)
	}
	return alerts, nil
}

// GetAlert returns a single alert or ErrAlertNotFound.
func (s *Store) GetAlert(ctx context.Context, id int64) (*types.Alert, error) {
	alerts, err := s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?;`, id)
	if err != nil {
		return nil, storageErr("query alert", err)
	}
	if len(alerts) == 0 {
		return nil, errors.Wrapf(ErrAlertNotFound, "id %d", id)
	}
	return &alerts[0], nil
}

// TriggerAlert stamps last_triggered and bumps trigger_count. It reports
// whether the alert existed.
func (s *Store) TriggerAlert(ctx context.Context, id int64) (bool, error) {
	return s.execAffected(ctx, "trigger alert",
		`UPDATE alerts SET last_triggered = ?, trigger_count = trigger_count + 1 WHERE id = ?;`,
		time.Now().UTC(), id)
}

// SetAlertActive toggles is_active. It reports whether the alert existed.
func (s *Store) SetAlertActive(ctx context.Context, id int64, active bool) (bool, error) {
	return s.execAffected(ctx, "update alert status",
		`UPDATE alerts SET is_active = ? WHERE id = ?;`, active, id)
}

// DeleteAlert removes an alert. It reports whether the alert existed.
func (s *Store) DeleteAlert(ctx context.Context, id int64) (bool, error) {
	return s.execAffected(ctx, "delete alert", `DELETE FROM alerts WHERE id = ?;`, id)
}

// CountActiveAlerts returns the number of active alerts.
func (s *Store) CountActiveAlerts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE is_active = 1;`).Scan(&n); err != nil {
		return 0, storageErr("count active alerts", err)
	}
	return n, nil
}

// CountActiveAlertsByToken returns the number of active alerts on a token.
func (s *Store) CountActiveAlertsByToken(ctx context.Context, tokenName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE is_active = 1 AND token_name = ?;`,
		types.CanonicalToken(tokenName)).Scan(&n)
	if err != nil {
		return 0, storageErr("count active alerts by token", err)
	}
	return n, nil
}

func (s *Store) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr(op, err)
	}
	return n > 0, nil
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]types.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var (
			alert         types.Alert
			contract      sql.NullString
			alertType     string
			lastTriggered sql.NullTime
		)
		if err := rows.Scan(&alert.ID, &alert.TokenName, &contract, &alertType, &alert.TargetPrice,
			&alert.IsActive, &alert.CreatedAt, &lastTriggered, &alert.TriggerCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		alert.TokenContract = contract.String
		alert.AlertType = types.AlertType(alertType)
		if lastTriggered.Valid {
			t := lastTriggered.Time
			alert.LastTriggered = &t
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
