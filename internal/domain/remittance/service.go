package remittance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/medledger/medledger/internal/domain/claims"
	"github.com/medledger/medledger/internal/edi"
	"github.com/medledger/medledger/internal/platform/db"
)

// Config carries the reconciliation tunables.
type Config struct {
	// DateToleranceDays is the service-date slack allowed when confirming a
	// line match.
	DateToleranceDays int
	// UnderpaymentThresholdPct flags lines paid more than this percentage
	// below the allowed amount.
	UnderpaymentThresholdPct float64
}

type Service struct {
	repo     Repository
	claims   claims.ClaimRepository
	charges  claims.ChargeRepository
	payments claims.PaymentRepository
	matcher  *Matcher
	pool     *pgxpool.Pool
	cfg      Config
}

func NewService(repo Repository, cl claims.ClaimRepository, ch claims.ChargeRepository, pay claims.PaymentRepository, pool *pgxpool.Pool, cfg Config) *Service {
	return &Service{
		repo:     repo,
		claims:   cl,
		charges:  ch,
		payments: pay,
		matcher:  NewMatcher(cl, ch, cfg.DateToleranceDays),
		pool:     pool,
		cfg:      cfg,
	}
}

// runTx wraps fn in a transaction when a pool is attached. Unit tests run
// against map-backed repositories with no pool and execute fn directly.
func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// Ingest parses a raw 835, matches its line items against submitted claims,
// and persists the remittance. Re-ingesting a check replaces its unposted
// line items; a check with posted items is immutable.
func (s *Service) Ingest(ctx context.Context, orgID uuid.UUID, raw []byte) (*Remittance, error) {
	parse := edi.Parse835(string(raw))
	if !parse.Success {
		return nil, fmt.Errorf("835 parse failed: %s", strings.Join(parse.Errors, "; "))
	}
	parsed := parse.Remittance

	rem := &Remittance{
		OrgID:         orgID,
		CheckNumber:   parsed.CheckNumber,
		CheckDate:     parsed.CheckDate,
		TotalPaid:     parsed.TotalPaid,
		TotalCharges:  parsed.TotalCharges,
		TotalAdjusted: parsed.TotalAdjusted,
		ClaimCount:    len(parsed.Claims),
		Status:        StatusReceived,
		RawEDI:        string(raw),
	}
	if parsed.PayerName != "" {
		rem.PayerName = strptr(parsed.PayerName)
	}
	if parsed.PayerID != "" {
		rem.PayerID = strptr(parsed.PayerID)
	}

	existing, err := s.repo.GetByCheckNumber(ctx, orgID, rem.CheckNumber)
	switch {
	case err == nil:
		if existing.Status != StatusReceived {
			return nil, fmt.Errorf("check %s has posted line items and cannot be re-ingested", rem.CheckNumber)
		}
		rem.ID = existing.ID
		rem.CreatedAt = existing.CreatedAt
	case IsNotFound(err):
		// First time seeing this check.
	default:
		return nil, err
	}

	items := s.buildItems(orgID, parsed)
	if err := s.matcher.MatchAll(ctx, items); err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if existing != nil {
			if err := s.repo.DeleteUnpostedItems(ctx, rem.ID); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, rem); err != nil {
				return err
			}
		} else {
			if err := s.repo.Create(ctx, rem); err != nil {
				return err
			}
		}
		for _, li := range items {
			li.RemittanceID = rem.ID
			if err := s.repo.AddItem(ctx, li); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rem.Items = items
	log.Info().
		Str("check_number", rem.CheckNumber).
		Int("claims", rem.ClaimCount).
		Int("line_items", len(items)).
		Float64("total_paid", rem.TotalPaid).
		Msg("remittance ingested")
	return rem, nil
}

// buildItems flattens the parsed claim/service tree into line items. A CLP
// with no SVC detail (full-claim denials, mostly) becomes a single
// claim-level item.
func (s *Service) buildItems(orgID uuid.UUID, parsed *edi.ParsedRemittance) []*LineItem {
	var items []*LineItem
	for _, rc := range parsed.Claims {
		base := LineItem{
			OrgID:           orgID,
			ClaimNumber:     rc.PatientAccountNumber,
			ClaimStatusCode: rc.StatusCode,
			MatchConfidence: ConfidenceNone,
		}
		if rc.PayerClaimNumber != "" {
			base.PayerClaimNumber = strptr(rc.PayerClaimNumber)
		}
		if rc.PatientName != "" {
			base.PatientName = strptr(rc.PatientName)
		}

		if len(rc.Services) == 0 {
			li := base
			li.ChargedAmount = rc.ChargedAmount
			li.PaidAmount = rc.PaidAmount
			li.PatientAmount = rc.PatientAmount
			li.Adjustments = convertAdjustments(rc.Adjustments)
			li.AdjustedAmount = sumAdjustments(li.Adjustments)
			items = append(items, &li)
			continue
		}

		for _, svc := range rc.Services {
			li := base
			li.CPTCode = svc.CPTCode
			li.Modifiers = svc.Modifiers
			li.ServiceDate = svc.ServiceDate
			li.ChargedAmount = svc.ChargedAmount
			li.PaidAmount = svc.PaidAmount
			li.AllowedAmount = svc.AllowedAmount
			li.PatientAmount = svc.PatientAmount
			li.Adjustments = convertAdjustments(svc.Adjustments)
			li.AdjustedAmount = svc.AdjustedAmount()
			li.RemarkCodes = svc.RemarkCodes
			items = append(items, &li)
		}
	}
	return items
}

func convertAdjustments(in []edi.Adjustment) []Adjustment {
	out := make([]Adjustment, 0, len(in))
	for _, a := range in {
		out = append(out, Adjustment{GroupCode: a.GroupCode, ReasonCode: a.ReasonCode, Amount: a.Amount})
	}
	return out
}

func sumAdjustments(adjs []Adjustment) float64 {
	var total float64
	for _, a := range adjs {
		total += a.Amount
	}
	return total
}

// GetRemittance loads a remittance with its line items.
func (s *Service) GetRemittance(ctx context.Context, orgID, id uuid.UUID) (*Remittance, error) {
	rem, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rem.Items, err = s.repo.GetItems(ctx, rem.ID); err != nil {
		return nil, err
	}
	return rem, nil
}

func (s *Service) ListRemittances(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*Remittance, int, error) {
	if status != "" && status != StatusReceived && status != StatusPartiallyPosted && status != StatusPosted {
		return nil, 0, fmt.Errorf("invalid remittance status: %s", status)
	}
	return s.repo.List(ctx, orgID, status, limit, offset)
}

// Rematch re-runs the matcher over the unposted line items. Useful after
// claims arrive late or a payer claim number gets recorded.
func (s *Service) Rematch(ctx context.Context, orgID, id uuid.UUID) (*Remittance, error) {
	rem, err := s.GetRemittance(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	for _, li := range rem.Items {
		if li.IsPosted {
			continue
		}
		if err := s.matcher.MatchItem(ctx, li); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateItemMatch(ctx, li); err != nil {
			return nil, err
		}
	}
	return rem, nil
}

// PostingReport re-parses the stored 835 and summarizes it by adjustment
// group and reason.
func (s *Service) PostingReport(ctx context.Context, orgID, id uuid.UUID) (*edi.PostingReport, error) {
	rem, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	parse := edi.Parse835(rem.RawEDI)
	if !parse.Success {
		return nil, fmt.Errorf("stored 835 for check %s no longer parses: %s", rem.CheckNumber, strings.Join(parse.Errors, "; "))
	}
	report := edi.BuildPostingReport(parse.Remittance)
	return &report, nil
}

// Denials lists the denied line items on a remittance.
func (s *Service) Denials(ctx context.Context, orgID, id uuid.UUID) ([]DenialFlag, error) {
	rem, err := s.GetRemittance(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return DetectDenials(rem.Items), nil
}

// Underpayments lists the line items paid below the allowed amount beyond
// the configured threshold.
func (s *Service) Underpayments(ctx context.Context, orgID, id uuid.UUID) ([]UnderpaymentFlag, error) {
	rem, err := s.GetRemittance(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return DetectUnderpayments(rem.Items, s.cfg.UnderpaymentThresholdPct), nil
}

// IsNotFound reports whether err is the repository's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || claims.IsNotFound(err)
}
