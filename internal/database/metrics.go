package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SaveMetric upserts a metric value. Unlabeled metrics use empty label strings.
func (s *Store) SaveMetric(ctx context.Context, metricName, labelKey, labelValue string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO metrics (metric_name, label_key, label_value, metric_value)
	VALUES (?, ?, ?, ?);`, metricName, labelKey, labelValue, value)
	if err != nil {
		return storageErr("save metric", err)
	}
	log.Debugf("Metric saved: %s[%s=%s] = %f", metricName, labelKey, labelValue, value)
	return nil
}

// GetMetric loads a metric value, defaulting to 0 when it was never saved.
func (s *Store) GetMetric(ctx context.Context, metricName, labelKey, labelValue string) (float64, error) {
	var value float64
	err := s.db.QueryRowContext(ctx, `
	SELECT metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key = ? AND label_value = ?;`, metricName, labelKey, labelValue).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debugf("Metric %s not found in the database, defaulting to 0", metricName)
		return 0, nil
	} else if err != nil {
		return 0, storageErr("get metric "+metricName, err)
	}
	return value, nil
}

// GetMetricsWithLabels returns label_key -> label_value -> value for a metric.
func (s *Store) GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT label_key, label_value, metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key != '';`, metricName)
	if err != nil {
		return nil, storageErr("query metrics with labels", err)
	}
	defer rows.Close()

	metrics := make(map[string]map[string]float64)
	for rows.Next() {
		var labelKey, labelValue string
		var value float64
		if err := rows.Scan(&labelKey, &labelValue, &value); err != nil {
			return nil, storageErr("query metrics with labels", errors.Wrap(err, "failed to scan row"))
		}
		if _, exists := metrics[labelKey]; !exists {
			metrics[labelKey] = make(map[string]float64)
		}
		metrics[labelKey][labelValue] = value
	}
	return metrics, rows.Err()
}
