package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// LotRepo reads lots together with the owner of their market.  Lots and
// markets are written by the market service; this service never changes
// them.
type LotRepo struct{}

// GetTx loads one lot.  With forUpdate the lot row is locked until the
// transaction ends, which serializes approvals on the same lot.
func (LotRepo) GetTx(ctx context.Context, tx *sql.Tx, id string, forUpdate bool) (*model.Lot, error) {
	q := `SELECT l.id, l.market_id, m.owner_id, l.name, l.price_per_day, l.available
          FROM lots l
          JOIN markets m ON m.id = l.market_id
          WHERE l.id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var l model.Lot
	err := tx.QueryRowContext(ctx, q, id).Scan(&l.ID, &l.MarketID, &l.OwnerID, &l.Name, &l.PricePerDay, &l.Available)
	if err != nil {
		return nil, noRecord(err)
	}
	return &l, nil
}
