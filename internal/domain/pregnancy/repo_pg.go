package pregnancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reprotech/pregtrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type transferRepoPG struct{ pool *pgxpool.Pool }

func NewTransferRepoPG(pool *pgxpool.Pool) TransferRepository {
	return &transferRepoPG{pool: pool}
}

func (r *transferRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const transferCols = `id, transfer_code, transfer_date, embryo_id, embryo_grade, quality_score,
	recipient_id, recipient_name, donor_id, donor_name, sire_id, sire_name,
	customer_name, veterinarian, technician, tracking, version, created_by,
	created_at, updated_at`

func (r *transferRepoPG) scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	var tracking []byte
	err := row.Scan(&t.ID, &t.TransferCode, &t.TransferDate, &t.EmbryoID, &t.EmbryoGrade, &t.QualityScore,
		&t.RecipientID, &t.RecipientName, &t.DonorID, &t.DonorName, &t.SireID, &t.SireName,
		&t.CustomerName, &t.Veterinarian, &t.Technician, &tracking, &t.Version, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(tracking, &t.Tracking); err != nil {
		return nil, fmt.Errorf("decode tracking for transfer %s: %w", t.ID, err)
	}
	if err := t.Tracking.Validate(); err != nil {
		return nil, fmt.Errorf("stored tracking for transfer %s: %w", t.ID, err)
	}
	return &t, nil
}

func (r *transferRepoPG) Create(ctx context.Context, t *Transfer) error {
	t.ID = uuid.New()
	if t.TransferCode == "" {
		t.TransferCode = "ET-" + t.ID.String()[:8]
	}
	t.Version = 1
	tracking, err := json.Marshal(t.Tracking)
	if err != nil {
		return fmt.Errorf("encode tracking: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO embryo_transfer (id, transfer_code, transfer_date, embryo_id, embryo_grade, quality_score,
			recipient_id, recipient_name, donor_id, donor_name, sire_id, sire_name,
			customer_name, veterinarian, technician, status, tracking, version, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		t.ID, t.TransferCode, t.TransferDate, t.EmbryoID, t.EmbryoGrade, t.QualityScore,
		t.RecipientID, t.RecipientName, t.DonorID, t.DonorName, t.SireID, t.SireName,
		t.CustomerName, t.Veterinarian, t.Technician, string(t.Tracking.CurrentStatus), tracking, t.Version, t.CreatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *transferRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return r.scanTransfer(r.conn(ctx).QueryRow(ctx, `SELECT `+transferCols+` FROM embryo_transfer WHERE id = $1`, id))
}

func (r *transferRepoPG) List(ctx context.Context, filter TransferFilter, limit, offset int) ([]*Transfer, int, error) {
	query := `SELECT ` + transferCols + ` FROM embryo_transfer WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM embryo_transfer WHERE 1=1`
	var args []interface{}
	idx := 1
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.Veterinarian != "" {
		query += fmt.Sprintf(` AND veterinarian = $%d`, idx)
		countQuery += fmt.Sprintf(` AND veterinarian = $%d`, idx)
		args = append(args, filter.Veterinarian)
		idx++
	}
	if filter.DonorID != "" {
		query += fmt.Sprintf(` AND donor_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND donor_id = $%d`, idx)
		args = append(args, filter.DonorID)
		idx++
	}
	if filter.From != nil {
		query += fmt.Sprintf(` AND transfer_date >= $%d`, idx)
		countQuery += fmt.Sprintf(` AND transfer_date >= $%d`, idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		query += fmt.Sprintf(` AND transfer_date <= $%d`, idx)
		countQuery += fmt.Sprintf(` AND transfer_date <= $%d`, idx)
		args = append(args, *filter.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query += fmt.Sprintf(` ORDER BY transfer_date DESC, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Transfer
	for rows.Next() {
		t, err := r.scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *transferRepoPG) UpdateTracking(ctx context.Context, id uuid.UUID, tracking *Tracking, expectedVersion int) error {
	data, err := json.Marshal(tracking)
	if err != nil {
		return fmt.Errorf("encode tracking: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE embryo_transfer SET tracking=$2, status=$3, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $4`,
		id, data, string(tracking.CurrentStatus), expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM embryo_transfer WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *transferRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM embryo_transfer WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
