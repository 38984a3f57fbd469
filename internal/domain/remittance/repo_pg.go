package remittance

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medledger/medledger/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const remittanceCols = `id, org_id, check_number, check_date, payer_name, payer_id,
	total_paid, total_charges, total_adjusted, claim_count, status, raw_edi,
	created_at, updated_at`

func scanRemittance(row pgx.Row) (*Remittance, error) {
	var rem Remittance
	err := row.Scan(&rem.ID, &rem.OrgID, &rem.CheckNumber, &rem.CheckDate, &rem.PayerName, &rem.PayerID,
		&rem.TotalPaid, &rem.TotalCharges, &rem.TotalAdjusted, &rem.ClaimCount, &rem.Status, &rem.RawEDI,
		&rem.CreatedAt, &rem.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &rem, err
}

func (r *repoPG) Create(ctx context.Context, rem *Remittance) error {
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO remittance (id, org_id, check_number, check_date, payer_name, payer_id,
			total_paid, total_charges, total_adjusted, claim_count, status, raw_edi)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rem.ID, rem.OrgID, rem.CheckNumber, rem.CheckDate, rem.PayerName, rem.PayerID,
		rem.TotalPaid, rem.TotalCharges, rem.TotalAdjusted, rem.ClaimCount, rem.Status, rem.RawEDI)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Remittance, error) {
	return scanRemittance(r.conn(ctx).QueryRow(ctx,
		`SELECT `+remittanceCols+` FROM remittance WHERE org_id = $1 AND id = $2`, orgID, id))
}

func (r *repoPG) GetByCheckNumber(ctx context.Context, orgID uuid.UUID, checkNumber string) (*Remittance, error) {
	return scanRemittance(r.conn(ctx).QueryRow(ctx,
		`SELECT `+remittanceCols+` FROM remittance WHERE org_id = $1 AND check_number = $2`, orgID, checkNumber))
}

func (r *repoPG) Update(ctx context.Context, rem *Remittance) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE remittance SET check_date=$3, payer_name=$4, payer_id=$5,
			total_paid=$6, total_charges=$7, total_adjusted=$8, claim_count=$9,
			status=$10, raw_edi=$11, updated_at=NOW()
		WHERE org_id = $1 AND id = $2`,
		rem.OrgID, rem.ID, rem.CheckDate, rem.PayerName, rem.PayerID,
		rem.TotalPaid, rem.TotalCharges, rem.TotalAdjusted, rem.ClaimCount,
		rem.Status, rem.RawEDI)
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE remittance SET status=$3, updated_at=NOW()
		WHERE org_id = $1 AND id = $2`, orgID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*Remittance, int, error) {
	where := `org_id = $1`
	args := []interface{}{orgID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM remittance WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+remittanceCols+` FROM remittance WHERE `+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Remittance
	for rows.Next() {
		rem, err := scanRemittance(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rem)
	}
	return items, total, rows.Err()
}

// =========== Line items ===========

const itemCols = `id, remittance_id, org_id, claim_number, payer_claim_number, patient_name,
	claim_status_code, cpt_code, modifiers, service_date,
	charged_amount, paid_amount, allowed_amount, adjusted_amount, patient_amount,
	adjustments, remark_codes,
	matched_claim_id, matched_service_line_id, match_confidence, match_reason,
	is_posted, posted_at, created_at`

func scanItem(row pgx.Row) (*LineItem, error) {
	var li LineItem
	var adjustments []byte
	err := row.Scan(&li.ID, &li.RemittanceID, &li.OrgID, &li.ClaimNumber, &li.PayerClaimNumber, &li.PatientName,
		&li.ClaimStatusCode, &li.CPTCode, &li.Modifiers, &li.ServiceDate,
		&li.ChargedAmount, &li.PaidAmount, &li.AllowedAmount, &li.AdjustedAmount, &li.PatientAmount,
		&adjustments, &li.RemarkCodes,
		&li.MatchedClaimID, &li.MatchedServiceLineID, &li.MatchConfidence, &li.MatchReason,
		&li.IsPosted, &li.PostedAt, &li.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(adjustments) > 0 {
		if err := json.Unmarshal(adjustments, &li.Adjustments); err != nil {
			return nil, err
		}
	}
	return &li, nil
}

func (r *repoPG) AddItem(ctx context.Context, li *LineItem) error {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	adjustments, err := json.Marshal(li.Adjustments)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO remittance_line_item (id, remittance_id, org_id, claim_number,
			payer_claim_number, patient_name, claim_status_code, cpt_code, modifiers, service_date,
			charged_amount, paid_amount, allowed_amount, adjusted_amount, patient_amount,
			adjustments, remark_codes,
			matched_claim_id, matched_service_line_id, match_confidence, match_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		li.ID, li.RemittanceID, li.OrgID, li.ClaimNumber,
		li.PayerClaimNumber, li.PatientName, li.ClaimStatusCode, li.CPTCode, li.Modifiers, li.ServiceDate,
		li.ChargedAmount, li.PaidAmount, li.AllowedAmount, li.AdjustedAmount, li.PatientAmount,
		adjustments, li.RemarkCodes,
		li.MatchedClaimID, li.MatchedServiceLineID, li.MatchConfidence, li.MatchReason)
	return err
}

func (r *repoPG) GetItem(ctx context.Context, orgID, id uuid.UUID) (*LineItem, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM remittance_line_item WHERE org_id = $1 AND id = $2`, orgID, id))
}

func (r *repoPG) GetItems(ctx context.Context, remittanceID uuid.UUID) ([]*LineItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM remittance_line_item WHERE remittance_id = $1 ORDER BY created_at, id`, remittanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LineItem
	for rows.Next() {
		li, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateItemMatch(ctx context.Context, li *LineItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE remittance_line_item
		SET matched_claim_id=$2, matched_service_line_id=$3, match_confidence=$4, match_reason=$5
		WHERE id = $1 AND is_posted = FALSE`,
		li.ID, li.MatchedClaimID, li.MatchedServiceLineID, li.MatchConfidence, li.MatchReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) MarkItemPosted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE remittance_line_item SET is_posted = TRUE, posted_at = NOW()
		WHERE id = $1 AND is_posted = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) DeleteUnpostedItems(ctx context.Context, remittanceID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM remittance_line_item WHERE remittance_id = $1 AND is_posted = FALSE`, remittanceID)
	return err
}
