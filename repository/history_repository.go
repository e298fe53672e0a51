package repository

import (
	"fmt"
	"time"

	"cartscout/database"
	"cartscout/models"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

// RecordComparison persists the summary of one completed comparison
func (r *HistoryRepository) RecordComparison(record *models.ComparisonRecord) error {
	query := `
		INSERT INTO comparison_history
			(hostname, product_count, candidates_found, sites_attempted, alternatives_found, best_savings, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := database.DB.QueryRow(query,
		record.Hostname, record.ProductCount, record.CandidatesFound,
		record.SitesAttempted, record.AlternativesFound, record.BestSavings,
		record.DurationMs, now,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to record comparison: %v", err)
	}

	record.CreatedAt = now
	return nil
}

// GetRecent returns the most recent comparison records
func (r *HistoryRepository) GetRecent(limit int) ([]models.ComparisonRecord, error) {
	query := `
		SELECT id, hostname, product_count, candidates_found, sites_attempted, alternatives_found, best_savings, duration_ms, created_at
		FROM comparison_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := database.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison history: %v", err)
	}
	defer rows.Close()

	var records []models.ComparisonRecord
	for rows.Next() {
		var record models.ComparisonRecord
		err := rows.Scan(
			&record.ID, &record.Hostname, &record.ProductCount,
			&record.CandidatesFound, &record.SitesAttempted, &record.AlternativesFound,
			&record.BestSavings, &record.DurationMs, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comparison record: %v", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// GetStats returns aggregate counters for the metrics endpoint
func (r *HistoryRepository) GetStats() (map[string]interface{}, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(alternatives_found), 0),
			COALESCE(MAX(best_savings), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM comparison_history
	`

	var total, alternatives int
	var maxSavings, avgDuration float64
	err := database.DB.QueryRow(query).Scan(&total, &alternatives, &maxSavings, &avgDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison stats: %v", err)
	}

	return map[string]interface{}{
		"total_comparisons":  total,
		"total_alternatives": alternatives,
		"best_savings":       maxSavings,
		"avg_duration_ms":    avgDuration,
	}, nil
}

// PruneOlderThan deletes records older than the retention window and
// returns how many rows were removed
func (r *HistoryRepository) PruneOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result, err := database.DB.Exec(`DELETE FROM comparison_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune comparison history: %v", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return rows, nil
}
