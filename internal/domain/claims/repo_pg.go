package claims

import (
	"context"
	"errors"
	"strconv"
	"time"

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

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const claimCols = `id, org_id, claim_number, status,
	patient_id, patient_first_name, patient_last_name, patient_dob, patient_gender,
	patient_address1, patient_address2, patient_city, patient_state, patient_zip,
	payer_id, payer_name, subscriber_id, subscriber_first, subscriber_last,
	group_number, relationship_code,
	provider_npi, provider_tax_id, provider_name,
	provider_address1, provider_city, provider_state, provider_zip,
	place_of_service, total_charges, payer_claim_number, control_number,
	submitted_at, status_reason, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.OrgID, &c.ClaimNumber, &c.Status,
		&c.PatientID, &c.PatientFirstName, &c.PatientLastName, &c.PatientDOB, &c.PatientGender,
		&c.PatientAddress1, &c.PatientAddress2, &c.PatientCity, &c.PatientState, &c.PatientZip,
		&c.PayerID, &c.PayerName, &c.SubscriberID, &c.SubscriberFirst, &c.SubscriberLast,
		&c.GroupNumber, &c.RelationshipCode,
		&c.ProviderNPI, &c.ProviderTaxID, &c.ProviderName,
		&c.ProviderAddr1, &c.ProviderCity, &c.ProviderState, &c.ProviderZip,
		&c.PlaceOfService, &c.TotalCharges, &c.PayerClaimNumber, &c.ControlNumber,
		&c.SubmittedAt, &c.StatusReason, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim (id, org_id, claim_number, status,
			patient_id, patient_first_name, patient_last_name, patient_dob, patient_gender,
			patient_address1, patient_address2, patient_city, patient_state, patient_zip,
			payer_id, payer_name, subscriber_id, subscriber_first, subscriber_last,
			group_number, relationship_code,
			provider_npi, provider_tax_id, provider_name,
			provider_address1, provider_city, provider_state, provider_zip,
			place_of_service, total_charges)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)`,
		c.ID, c.OrgID, c.ClaimNumber, c.Status,
		c.PatientID, c.PatientFirstName, c.PatientLastName, c.PatientDOB, c.PatientGender,
		c.PatientAddress1, c.PatientAddress2, c.PatientCity, c.PatientState, c.PatientZip,
		c.PayerID, c.PayerName, c.SubscriberID, c.SubscriberFirst, c.SubscriberLast,
		c.GroupNumber, c.RelationshipCode,
		c.ProviderNPI, c.ProviderTaxID, c.ProviderName,
		c.ProviderAddr1, c.ProviderCity, c.ProviderState, c.ProviderZip,
		c.PlaceOfService, c.TotalCharges)
	return err
}

func (r *claimRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claim WHERE org_id = $1 AND id = $2`, orgID, id))
}

func (r *claimRepoPG) GetByClaimNumber(ctx context.Context, orgID uuid.UUID, claimNumber string) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claim WHERE org_id = $1 AND claim_number = $2`, orgID, claimNumber))
}

func (r *claimRepoPG) GetByPayerClaimNumber(ctx context.Context, orgID uuid.UUID, payerClaimNumber string) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claim WHERE org_id = $1 AND payer_claim_number = $2`, orgID, payerClaimNumber))
}

func (r *claimRepoPG) Update(ctx context.Context, c *Claim) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET status=$3,
			patient_first_name=$4, patient_last_name=$5, patient_dob=$6, patient_gender=$7,
			patient_address1=$8, patient_address2=$9, patient_city=$10, patient_state=$11, patient_zip=$12,
			payer_id=$13, payer_name=$14, subscriber_id=$15, subscriber_first=$16, subscriber_last=$17,
			group_number=$18, relationship_code=$19,
			provider_npi=$20, provider_tax_id=$21, provider_name=$22,
			provider_address1=$23, provider_city=$24, provider_state=$25, provider_zip=$26,
			place_of_service=$27, total_charges=$28, payer_claim_number=$29, control_number=$30,
			submitted_at=$31, status_reason=$32, updated_at=NOW()
		WHERE org_id = $1 AND id = $2`,
		c.OrgID, c.ID, c.Status,
		c.PatientFirstName, c.PatientLastName, c.PatientDOB, c.PatientGender,
		c.PatientAddress1, c.PatientAddress2, c.PatientCity, c.PatientState, c.PatientZip,
		c.PayerID, c.PayerName, c.SubscriberID, c.SubscriberFirst, c.SubscriberLast,
		c.GroupNumber, c.RelationshipCode,
		c.ProviderNPI, c.ProviderTaxID, c.ProviderName,
		c.ProviderAddr1, c.ProviderCity, c.ProviderState, c.ProviderZip,
		c.PlaceOfService, c.TotalCharges, c.PayerClaimNumber, c.ControlNumber,
		c.SubmittedAt, c.StatusReason)
	return err
}

func (r *claimRepoPG) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status string, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET status=$3, status_reason=$4, updated_at=NOW()
		WHERE org_id = $1 AND id = $2`, orgID, id, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *claimRepoPG) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim WHERE org_id = $1 AND id = $2`, orgID, id)
	return err
}

func (r *claimRepoPG) List(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*Claim, int, error) {
	where := `org_id = $1`
	args := []interface{}{orgID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimCols+` FROM claim WHERE `+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectClaims(rows)
	return items, total, err
}

func (r *claimRepoPG) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]*Claim, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM claim WHERE org_id = $1 AND patient_id = $2`, orgID, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimCols+` FROM claim WHERE org_id = $1 AND patient_id = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, orgID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectClaims(rows)
	return items, total, err
}

func collectClaims(rows pgx.Rows) ([]*Claim, error) {
	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *claimRepoPG) AddDiagnosis(ctx context.Context, d *Diagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_diagnosis (id, claim_id, sequence, code, description)
		VALUES ($1,$2,$3,$4,$5)`,
		d.ID, d.ClaimID, d.Sequence, d.Code, d.Description)
	return err
}

func (r *claimRepoPG) GetDiagnoses(ctx context.Context, claimID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, sequence, code, description
		FROM claim_diagnosis WHERE claim_id = $1 ORDER BY sequence`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Diagnosis
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.Sequence, &d.Code, &d.Description); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *claimRepoPG) DeleteDiagnoses(ctx context.Context, claimID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_diagnosis WHERE claim_id = $1`, claimID)
	return err
}

func (r *claimRepoPG) AddLine(ctx context.Context, l *ServiceLine) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_line (id, claim_id, line_number, cpt_code, modifiers,
			diagnosis_pointers, units, charge_amount, service_date_from, service_date_to, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		l.ID, l.ClaimID, l.LineNumber, l.CPTCode, l.Modifiers,
		l.DiagnosisPointers, l.Units, l.ChargeAmount, l.ServiceDateFrom, l.ServiceDateTo, l.Description)
	return err
}

func (r *claimRepoPG) GetLines(ctx context.Context, claimID uuid.UUID) ([]*ServiceLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, line_number, cpt_code, modifiers,
			diagnosis_pointers, units, charge_amount, service_date_from, service_date_to, description
		FROM service_line WHERE claim_id = $1 ORDER BY line_number`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ServiceLine
	for rows.Next() {
		var l ServiceLine
		if err := rows.Scan(&l.ID, &l.ClaimID, &l.LineNumber, &l.CPTCode, &l.Modifiers,
			&l.DiagnosisPointers, &l.Units, &l.ChargeAmount, &l.ServiceDateFrom, &l.ServiceDateTo, &l.Description); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, rows.Err()
}

func (r *claimRepoPG) DeleteLines(ctx context.Context, claimID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM service_line WHERE claim_id = $1`, claimID)
	return err
}

// =========== Charge Repository ===========

type chargeRepoPG struct{ pool *pgxpool.Pool }

func NewChargeRepoPG(pool *pgxpool.Pool) ChargeRepository { return &chargeRepoPG{pool: pool} }

func (r *chargeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const chargeCols = `id, org_id, claim_id, service_line_id, patient_id, cpt_code,
	units, total_amount, paid_amount, adjusted_amount, patient_amount, balance,
	status, created_at, updated_at`

func scanCharge(row pgx.Row) (*Charge, error) {
	var ch Charge
	err := row.Scan(&ch.ID, &ch.OrgID, &ch.ClaimID, &ch.ServiceLineID, &ch.PatientID, &ch.CPTCode,
		&ch.Units, &ch.TotalAmount, &ch.PaidAmount, &ch.AdjustedAmount, &ch.PatientAmount, &ch.Balance,
		&ch.Status, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &ch, err
}

func (r *chargeRepoPG) Create(ctx context.Context, ch *Charge) error {
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO charge (id, org_id, claim_id, service_line_id, patient_id, cpt_code,
			units, total_amount, paid_amount, adjusted_amount, patient_amount, balance, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ch.ID, ch.OrgID, ch.ClaimID, ch.ServiceLineID, ch.PatientID, ch.CPTCode,
		ch.Units, ch.TotalAmount, ch.PaidAmount, ch.AdjustedAmount, ch.PatientAmount, ch.Balance, ch.Status)
	return err
}

func (r *chargeRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Charge, error) {
	return scanCharge(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charge WHERE org_id = $1 AND id = $2`, orgID, id))
}

func (r *chargeRepoPG) GetByServiceLine(ctx context.Context, orgID, serviceLineID uuid.UUID) (*Charge, error) {
	return scanCharge(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charge WHERE org_id = $1 AND service_line_id = $2`, orgID, serviceLineID))
}

// FindByPatientCPT resolves a charge by procedure code and patient when a
// claim matched but none of its service lines agreed with the remittance
// line. The date window is evaluated against the charge's originating
// service line; a missing date on either side counts as agreement.
func (r *chargeRepoPG) FindByPatientCPT(ctx context.Context, orgID, patientID uuid.UUID, cptCode string, serviceDate *time.Time, toleranceDays int) (*Charge, error) {
	return scanCharge(r.conn(ctx).QueryRow(ctx, `
		SELECT c.id, c.org_id, c.claim_id, c.service_line_id, c.patient_id, c.cpt_code,
			c.units, c.total_amount, c.paid_amount, c.adjusted_amount, c.patient_amount, c.balance,
			c.status, c.created_at, c.updated_at
		FROM charge c
		JOIN service_line sl ON sl.id = c.service_line_id
		WHERE c.org_id = $1 AND c.patient_id = $2 AND c.cpt_code = $3
			AND c.status <> $4
			AND ($5::date IS NULL OR sl.service_date_from IS NULL
				OR sl.service_date_from BETWEEN $5::date - $6::int AND $5::date + $6::int)
		ORDER BY c.created_at
		LIMIT 1`,
		orgID, patientID, cptCode, ChargeWrittenOff, serviceDate, toleranceDays))
}

func (r *chargeRepoPG) ListByClaim(ctx context.Context, orgID, claimID uuid.UUID) ([]*Charge, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+chargeCols+` FROM charge WHERE org_id = $1 AND claim_id = $2 ORDER BY created_at`, orgID, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCharges(rows)
}

func (r *chargeRepoPG) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]*Charge, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM charge WHERE org_id = $1 AND patient_id = $2`, orgID, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+chargeCols+` FROM charge WHERE org_id = $1 AND patient_id = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, orgID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectCharges(rows)
	return items, total, err
}

func (r *chargeRepoPG) ListOpenOlderThan(ctx context.Context, orgID uuid.UUID, cutoff time.Time, limit int) ([]*Charge, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+chargeCols+` FROM charge
		 WHERE org_id = $1 AND status IN ($2, $3) AND created_at < $4
		 ORDER BY created_at LIMIT $5`,
		orgID, ChargeOpen, ChargePartial, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCharges(rows)
}

func (r *chargeRepoPG) Update(ctx context.Context, ch *Charge) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE charge SET paid_amount=$3, adjusted_amount=$4, patient_amount=$5,
			balance=$6, status=$7, updated_at=NOW()
		WHERE org_id = $1 AND id = $2`,
		ch.OrgID, ch.ID, ch.PaidAmount, ch.AdjustedAmount, ch.PatientAmount,
		ch.Balance, ch.Status)
	return err
}

func collectCharges(rows pgx.Rows) ([]*Charge, error) {
	var items []*Charge
	for rows.Next() {
		ch, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ch)
	}
	return items, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const paymentCols = `id, org_id, remittance_id, check_number, payer_name,
	amount, payment_date, method, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrgID, &p.RemittanceID, &p.CheckNumber, &p.PayerName,
		&p.Amount, &p.PaymentDate, &p.Method, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Method == "" {
		p.Method = "insurance"
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment (id, org_id, remittance_id, check_number, payer_name,
			amount, payment_date, method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.OrgID, p.RemittanceID, p.CheckNumber, p.PayerName,
		p.Amount, p.PaymentDate, p.Method)
	return err
}

func (r *paymentRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payment WHERE org_id = $1 AND id = $2`, orgID, id))
}

func (r *paymentRepoPG) GetByCheckNumber(ctx context.Context, orgID uuid.UUID, checkNumber string) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payment WHERE org_id = $1 AND check_number = $2`, orgID, checkNumber))
}

func (r *paymentRepoPG) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM payment WHERE org_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paymentCols+` FROM payment WHERE org_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *paymentRepoPG) AddAllocation(ctx context.Context, a *PaymentAllocation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_allocation (id, payment_id, charge_id, claim_id,
			remittance_line_item_id, amount, adjusted_amount, patient_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PaymentID, a.ChargeID, a.ClaimID,
		a.RemittanceLineItemID, a.Amount, a.AdjustedAmount, a.PatientAmount)
	return err
}

func (r *paymentRepoPG) GetAllocations(ctx context.Context, paymentID uuid.UUID) ([]*PaymentAllocation, error) {
	return r.queryAllocations(ctx, `payment_id = $1`, paymentID)
}

func (r *paymentRepoPG) GetAllocationsByCharge(ctx context.Context, chargeID uuid.UUID) ([]*PaymentAllocation, error) {
	return r.queryAllocations(ctx, `charge_id = $1`, chargeID)
}

func (r *paymentRepoPG) queryAllocations(ctx context.Context, where string, arg interface{}) ([]*PaymentAllocation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, payment_id, charge_id, claim_id, remittance_line_item_id,
			amount, adjusted_amount, patient_amount, created_at
		FROM payment_allocation WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PaymentAllocation
	for rows.Next() {
		var a PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.ChargeID, &a.ClaimID, &a.RemittanceLineItemID,
			&a.Amount, &a.AdjustedAmount, &a.PatientAmount, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
