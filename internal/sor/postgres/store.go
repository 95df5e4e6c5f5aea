package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
)

// ErrProposalNotFound indicates the requested proposal pid has no row in
// the system of record (spec §4.4 step 1, spec §7).
var ErrProposalNotFound = errors.New("sor/postgres: proposal not found")

// ProposalRow is the raw proposal record read from the system of record.
type ProposalRow struct {
	Pid        string
	DealPid    string
	LoanFields map[string]any
}

// FetchProposal loads a proposal by pid, failing with ErrProposalNotFound
// if absent (spec §4.4 step 1).
func (c *Client) FetchProposal(ctx context.Context, pid string) (*ProposalRow, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT pid, deal_pid, loan_purpose, loan_amount
		FROM proposals WHERE pid = $1`, pid)

	var (
		rowPid, dealPid   string
		loanPurpose       sql.NullString
		loanAmount        sql.NullFloat64
	)
	if err := row.Scan(&rowPid, &dealPid, &loanPurpose, &loanAmount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("sor/postgres: fetch proposal %s: %w", pid, err)
	}

	fields := map[string]any{}
	if loanPurpose.Valid {
		fields["loan_purpose"] = loanPurpose.String
	}
	if loanAmount.Valid {
		fields["loan_amount"] = loanAmount.Float64
	}
	return &ProposalRow{Pid: rowPid, DealPid: dealPid, LoanFields: fields}, nil
}

// BorrowerRow is a raw borrower record.
type BorrowerRow struct {
	Pid       string
	FirstName string
	LastName  string
	Fields    map[string]any
}

// FetchBorrowers loads every borrower for a deal (spec §4.4 step 2).
func (c *Client) FetchBorrowers(ctx context.Context, dealPid string) ([]BorrowerRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT pid, first_name, last_name, citizenship_type, self_employed
		FROM borrowers WHERE deal_pid = $1`, dealPid)
	if err != nil {
		return nil, fmt.Errorf("sor/postgres: fetch borrowers for deal %s: %w", dealPid, err)
	}
	defer rows.Close()

	var out []BorrowerRow
	for rows.Next() {
		var (
			pid, first, last  string
			citizenship       sql.NullString
			selfEmployed      sql.NullBool
		)
		if err := rows.Scan(&pid, &first, &last, &citizenship, &selfEmployed); err != nil {
			return nil, fmt.Errorf("sor/postgres: scan borrower row: %w", err)
		}
		fields := map[string]any{}
		if citizenship.Valid {
			fields["citizenship_type"] = citizenship.String
		}
		if selfEmployed.Valid {
			fields["self_employed"] = selfEmployed.Bool
		}
		out = append(out, BorrowerRow{Pid: pid, FirstName: first, LastName: last, Fields: fields})
	}
	return out, rows.Err()
}

// childCollections holds the four borrower-keyed collections plus the
// single deal property row, fetched in parallel (spec §4.4 step 3).
type childCollections struct {
	jobs            []domain.EntityRef
	assets          []domain.EntityRef
	liabilities     []domain.EntityRef
	realEstateOwned []domain.EntityRef
	property        map[string]any
}

// FetchChildCollections fetches jobs, assets, liabilities, and owned real
// estate for the given borrower pids, and the property row for dealPid, all
// concurrently. Empty child collections return empty lists, never error.
func (c *Client) FetchChildCollections(ctx context.Context, dealPid string, borrowerPids []string) (*childCollections, error) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result = &childCollections{}
		errs   []error
	)

	fetch := func(label string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
				mu.Unlock()
			}
		}()
	}

	fetch("jobs", func() (err error) {
		result.jobs, err = c.fetchEntityRefs(ctx, `
			SELECT pid, employer_name, employer_name, base_pay_amount
			FROM jobs WHERE borrower_pid = ANY($1)`, borrowerPids, jobColumns)
		return err
	})
	fetch("assets", func() (err error) {
		result.assets, err = c.fetchEntityRefs(ctx, `
			SELECT pid, asset_type, asset_type, asset_value
			FROM assets WHERE borrower_pid = ANY($1)`, borrowerPids, assetColumns)
		return err
	})
	fetch("liabilities", func() (err error) {
		result.liabilities, err = c.fetchEntityRefs(ctx, `
			SELECT pid, liability_type, liability_type, monthly_payment
			FROM liabilities WHERE borrower_pid = ANY($1)`, borrowerPids, liabilityColumns)
		return err
	})
	fetch("real_estate_owned", func() (err error) {
		result.realEstateOwned, err = c.fetchEntityRefs(ctx, `
			SELECT pid, property_type, property_type, estimated_value
			FROM real_estate_owned WHERE borrower_pid = ANY($1)`, borrowerPids, reoColumns)
		return err
	})
	fetch("property", func() error {
		row := c.db.QueryRowContext(ctx, `
			SELECT occupancy_type, property_type, appraised_value
			FROM properties WHERE deal_pid = $1`, dealPid)
		var (
			occupancy, propertyType sql.NullString
			appraised               sql.NullFloat64
		)
		err := row.Scan(&occupancy, &propertyType, &appraised)
		if errors.Is(err, sql.ErrNoRows) {
			result.property = map[string]any{}
			return nil
		}
		if err != nil {
			return err
		}
		fields := map[string]any{}
		if occupancy.Valid {
			fields["occupancy_type"] = occupancy.String
		}
		if propertyType.Valid {
			fields["property_type"] = propertyType.String
		}
		if appraised.Valid {
			fields["appraised_value"] = appraised.Float64
		}
		result.property = fields
		return nil
	})

	wg.Wait()
	if len(errs) > 0 {
		return nil, fmt.Errorf("sor/postgres: fetch child collections for deal %s: %w", dealPid, errors.Join(errs...))
	}
	return result, nil
}

type entityColumns struct {
	displayField string
	valueField   string
}

var (
	jobColumns       = entityColumns{displayField: "employer_name", valueField: "base_pay_amount"}
	assetColumns     = entityColumns{displayField: "asset_type", valueField: "asset_value"}
	liabilityColumns = entityColumns{displayField: "liability_type", valueField: "monthly_payment"}
	reoColumns       = entityColumns{displayField: "property_type", valueField: "estimated_value"}
)

func (c *Client) fetchEntityRefs(ctx context.Context, query string, borrowerPids []string, cols entityColumns) ([]domain.EntityRef, error) {
	if len(borrowerPids) == 0 {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx, query, pqStringArray(borrowerPids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EntityRef
	for rows.Next() {
		var (
			pid, display sql.NullString
			displayDup   sql.NullString
			value        sql.NullFloat64
		)
		if err := rows.Scan(&pid, &display, &displayDup, &value); err != nil {
			return nil, err
		}
		fields := map[string]any{}
		if display.Valid {
			fields[cols.displayField] = display.String
		}
		if value.Valid {
			fields[cols.valueField] = value.Float64
		}
		out = append(out, domain.EntityRef{Pid: pid.String, DisplayName: display.String, Fields: fields})
	}
	return out, rows.Err()
}

// FetchAnsweredQuestionIDs returns the distinct set of question ids already
// answered for a deal (spec §4.4 step 4).
func (c *Client) FetchAnsweredQuestionIDs(ctx context.Context, dealPid string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT question_id FROM answered_questions WHERE deal_pid = $1`, dealPid)
	if err != nil {
		return nil, fmt.Errorf("sor/postgres: fetch answered questions for deal %s: %w", dealPid, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecordAnswer marks a question id as answered for a deal, idempotently.
func (c *Client) RecordAnswer(ctx context.Context, dealPid, questionID string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO answered_questions (deal_pid, question_id)
		VALUES ($1, $2)
		ON CONFLICT (deal_pid, question_id) DO NOTHING`, dealPid, questionID)
	if err != nil {
		return fmt.Errorf("sor/postgres: record answer for deal %s question %s: %w", dealPid, questionID, err)
	}
	return nil
}

// pqStringArray renders a Go string slice as a Postgres text array literal
// usable with = ANY($1) without requiring the lib/pq array helper type.
func pqStringArray(values []string) string {
	out := "{"
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += `"` + v + `"`
	}
	return out + "}"
}
