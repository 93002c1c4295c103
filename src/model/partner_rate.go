package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/commissions/src/commission"
)

// ErrPartnerRateNotFound is returned when no override exists for a partner.
var ErrPartnerRateNotFound = errors.New("partner rate not found")

// PartnerRate represents a row in the partner_rates table: a negotiated
// commission rate overriding the referral default for one partner.
type PartnerRate struct {
	PartnerID string    `json:"partner_id"`
	Rate      float64   `json:"rate"`
	Label     string    `json:"label,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListPartnerRates returns every override ordered by partner id.
func ListPartnerRates(db *sql.DB) ([]PartnerRate, error) {
	rows, err := db.Query(`SELECT partner_id, rate, label, updated_at FROM partner_rates ORDER BY partner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []PartnerRate
	for rows.Next() {
		var pr PartnerRate
		var updatedAt sql.NullTime
		if err := rows.Scan(&pr.PartnerID, &pr.Rate, &pr.Label, &updatedAt); err != nil {
			return nil, err
		}
		pr.UpdatedAt = updatedAt.Time
		rates = append(rates, pr)
	}
	return rates, rows.Err()
}

// GetPartnerRates returns the overrides as a lookup table for the engine.
func GetPartnerRates(db *sql.DB) (map[string]float64, error) {
	rates, err := ListPartnerRates(db)
	if err != nil {
		return nil, err
	}
	table := make(map[string]float64, len(rates))
	for _, pr := range rates {
		table[pr.PartnerID] = pr.Rate
	}
	return table, nil
}

// GetPartnerRate retrieves a single override.
func GetPartnerRate(db *sql.DB, partnerID string) (*PartnerRate, error) {
	var pr PartnerRate
	var updatedAt sql.NullTime
	err := db.QueryRow(`SELECT partner_id, rate, label, updated_at FROM partner_rates WHERE partner_id = ?`, partnerID).
		Scan(&pr.PartnerID, &pr.Rate, &pr.Label, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPartnerRateNotFound, partnerID)
	}
	if err != nil {
		return nil, err
	}
	pr.UpdatedAt = updatedAt.Time
	return &pr, nil
}

// UpsertPartnerRate inserts or replaces the override for pr.PartnerID.
func UpsertPartnerRate(db *sql.DB, pr PartnerRate) error {
	if err := commission.ValidateRate(pr.Rate); err != nil {
		return err
	}
	query := `
		INSERT INTO partner_rates (partner_id, rate, label, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(partner_id) DO UPDATE SET rate = excluded.rate, label = excluded.label, updated_at = excluded.updated_at`

	_, err := db.Exec(query, pr.PartnerID, pr.Rate, pr.Label, time.Now().UTC())
	return err
}

// DeletePartnerRate removes the override so the partner falls back to the
// referral default.
func DeletePartnerRate(db *sql.DB, partnerID string) error {
	res, err := db.Exec(`DELETE FROM partner_rates WHERE partner_id = ?`, partnerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPartnerRateNotFound, partnerID)
	}
	return nil
}
