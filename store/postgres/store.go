package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/store/internal/sqlmodel"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("revenue/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("revenue/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Sequence Store ====================

func (s *Store) IncrementSequence(ctx context.Context, key sequence.Key) (int64, error) {
	var v int64
	err := s.pg.NewRaw(`
		UPDATE rev_sequences SET value = value + 1, updated_at = NOW()
		WHERE doc_type = $1 AND day = $2
		RETURNING value
	`, string(key.DocType), key.Day).Scan(ctx, &v)
	if err != nil {
		if isNoRows(err) {
			return 0, types.NotFound("sequence " + key.String())
		}
		return 0, fmt.Errorf("revenue/postgres: increment sequence: %w", err)
	}
	return v, nil
}

func (s *Store) CreateSequence(ctx context.Context, key sequence.Key, seed int64) (int64, error) {
	var v int64
	err := s.pg.NewRaw(`
		INSERT INTO rev_sequences (doc_type, day, value, updated_at)
		VALUES ($1, $2, $3 + 1, NOW())
		ON CONFLICT (doc_type, day) DO UPDATE
		SET value = rev_sequences.value + 1, updated_at = NOW()
		RETURNING value
	`, string(key.DocType), key.Day, seed).Scan(ctx, &v)
	if err != nil {
		return 0, fmt.Errorf("revenue/postgres: create sequence: %w", err)
	}
	return v, nil
}

func (s *Store) PeekSequence(ctx context.Context, key sequence.Key) (int64, error) {
	var v int64
	err := s.pg.NewRaw(`SELECT value FROM rev_sequences WHERE doc_type = $1 AND day = $2`,
		string(key.DocType), key.Day).Scan(ctx, &v)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("revenue/postgres: peek sequence: %w", err)
	}
	return v, nil
}

func (s *Store) CountDocuments(ctx context.Context, key sequence.Key) (int64, error) {
	var query string
	switch key.DocType {
	case sequence.DocBill, sequence.DocMasterBill:
		query = `SELECT COUNT(*) FROM rev_bills WHERE number LIKE $1`
	case sequence.DocReceipt:
		query = `SELECT COUNT(*) FROM rev_bills b, jsonb_array_elements(b.payments) p
			WHERE p->>'receipt_number' LIKE $1`
	case sequence.DocAnomaly:
		query = `SELECT COUNT(*) FROM rev_anomalies WHERE number LIKE $1`
	case sequence.DocCoding:
		query = `SELECT COUNT(*) FROM rev_codings WHERE number LIKE $1`
	default:
		return 0, nil
	}

	var n int64
	if err := s.pg.NewRaw(query, key.NumberPrefix()+"%").Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("revenue/postgres: count documents: %w", err)
	}
	return n, nil
}

// ==================== Bill Store ====================

func (s *Store) CreateBill(ctx context.Context, b *bill.Bill) error {
	m, err := sqlmodel.ToBillModel(b)
	if err != nil {
		return err
	}
	m.Version = 1
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: bill %s", types.ErrAlreadyExists, b.Number)
		}
		return fmt.Errorf("revenue/postgres: create bill: %w", err)
	}
	b.Version = 1
	return nil
}

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	return s.findBill(ctx, "id = $1", billID.String())
}

func (s *Store) GetBillByNumber(ctx context.Context, number string) (*bill.Bill, error) {
	return s.findBill(ctx, "number = $1", number)
}

func (s *Store) GetMasterBill(ctx context.Context, encounterID string) (*bill.Bill, error) {
	return s.findBill(ctx, "kind = 'master' AND encounter_id = $1", encounterID)
}

func (s *Store) FindOpenDepartmentBill(ctx context.Context, encounterID string, dept bill.Department) (*bill.Bill, error) {
	m := new(sqlmodel.BillModel)
	err := s.pg.NewSelect(m).
		Where("kind = 'department' AND status = 'draft' AND NOT is_locked").
		Where("encounter_id = $1", encounterID).
		Where("department = $2", string(dept)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/postgres: find open department bill: %w", err)
	}
	return sqlmodel.FromBillModel(m)
}

func (s *Store) findBill(ctx context.Context, where string, arg any) (*bill.Bill, error) {
	m := new(sqlmodel.BillModel)
	if err := s.pg.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/postgres: get bill: %w", err)
	}
	return sqlmodel.FromBillModel(m)
}

func (s *Store) GetBills(ctx context.Context, ids []id.BillID) ([]*bill.Bill, error) {
	if len(ids) == 0 {
		return []*bill.Bill{}, nil
	}
	keys := make([]string, len(ids))
	for i, billID := range ids {
		keys[i] = billID.String()
	}

	var models []sqlmodel.BillModel
	if err := s.pg.NewSelect(&models).Where("id = ANY($1)", keys).Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/postgres: get bills: %w", err)
	}
	return billsInOrder(keys, models)
}

func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	var models []sqlmodel.BillModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	filter := func(col, val string) {
		if val == "" {
			return
		}
		argIdx++
		q = q.Where(fmt.Sprintf("%s = $%d", col, argIdx), val)
	}
	filter("patient_id", opts.PatientID)
	filter("encounter_id", opts.EncounterID)
	filter("kind", string(opts.Kind))
	filter("department", string(opts.Department))
	filter("status", string(opts.Status))

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/postgres: list bills: %w", err)
	}
	return fromModels(models, sqlmodel.FromBillModel)
}

func (s *Store) UpdateBill(ctx context.Context, b *bill.Bill) error {
	m, err := sqlmodel.ToBillModel(b)
	if err != nil {
		return err
	}
	res, err := s.pg.NewUpdate((*sqlmodel.BillModel)(nil)).
		Set("subtotal = $1", m.Subtotal).
		Set("total_discount = $2", m.TotalDiscount).
		Set("total_tax = $3", m.TotalTax).
		Set("grand_total = $4", m.GrandTotal).
		Set("paid_amount = $5", m.PaidAmount).
		Set("balance_amount = $6", m.BalanceAmount).
		Set("payment_status = $7", m.PaymentStatus).
		Set("status = $8", m.Status).
		Set("is_locked = $9", m.IsLocked).
		Set("locked_at = $10", m.LockedAt).
		Set("finalized_at = $11", m.FinalizedAt).
		Set("cancelled_at = $12", m.CancelledAt).
		Set("cancel_reason = $13", m.CancelReason).
		Set("master_id = $14", m.MasterID).
		Set("items = $15::jsonb", m.Items).
		Set("payments = $16::jsonb", m.Payments).
		Set("linked_bills = $17::jsonb", m.LinkedBills).
		Set("department_payments = $18::jsonb", m.DepartmentPayments).
		Set("rollup = $19::jsonb", m.Rollup).
		Set("audit = $20::jsonb", m.Audit).
		Set("updated_at = $21", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = $22", m.ID).
		Where("version = $23", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/postgres: update bill: %w", err)
	}
	if err := s.checkVersioned(ctx, res, sqlmodel.BillsTable, m.ID, bill.ErrNotFound); err != nil {
		return err
	}
	b.Version++
	return nil
}

// ==================== Anomaly Store ====================

func (s *Store) CreateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	m, err := sqlmodel.ToAnomalyModel(a)
	if err != nil {
		return err
	}
	m.Version = 1
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: anomaly %s", types.ErrAlreadyExists, a.OpenKey)
		}
		return fmt.Errorf("revenue/postgres: create anomaly: %w", err)
	}
	a.Version = 1
	return nil
}

func (s *Store) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	return s.findAnomaly(ctx, "id = $1", anomalyID.String())
}

func (s *Store) FindOpenAnomaly(ctx context.Context, openKey string) (*anomaly.Anomaly, error) {
	if openKey == "" {
		return nil, anomaly.ErrNotFound
	}
	return s.findAnomaly(ctx, "open_key = $1", openKey)
}

func (s *Store) findAnomaly(ctx context.Context, where string, arg any) (*anomaly.Anomaly, error) {
	m := new(sqlmodel.AnomalyModel)
	if err := s.pg.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, anomaly.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/postgres: get anomaly: %w", err)
	}
	return sqlmodel.FromAnomalyModel(m)
}

func (s *Store) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	var models []sqlmodel.AnomalyModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	filter := func(col, val string) {
		if val == "" {
			return
		}
		argIdx++
		q = q.Where(fmt.Sprintf("%s = $%d", col, argIdx), val)
	}
	filter("status", string(opts.Status))
	filter("category", string(opts.Category))
	filter("severity", string(opts.Severity))
	filter("encounter_id", opts.EncounterID)
	filter("patient_id", opts.PatientID)
	filter("assigned_to", opts.AssignedTo)
	if opts.OverdueOnly {
		q = q.Where("is_overdue")
	}

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/postgres: list anomalies: %w", err)
	}
	return fromModels(models, sqlmodel.FromAnomalyModel)
}

func (s *Store) UpdateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	m, err := sqlmodel.ToAnomalyModel(a)
	if err != nil {
		return err
	}
	res, err := s.pg.NewUpdate((*sqlmodel.AnomalyModel)(nil)).
		Set("status = $1", m.Status).
		Set("priority = $2", m.Priority).
		Set("assigned_to = $3", m.AssignedTo).
		Set("resolution = $4::jsonb", m.Resolution).
		Set("dismissal = $5::jsonb", m.Dismissal).
		Set("escalation_reason = $6", m.EscalationReason).
		Set("closed_at = $7", m.ClosedAt).
		Set("open_key = $8", m.OpenKey).
		Set("due_by = $9", m.DueBy).
		Set("is_overdue = $10", m.IsOverdue).
		Set("history = $11::jsonb", m.History).
		Set("audit = $12::jsonb", m.Audit).
		Set("evidence = $13::jsonb", m.Evidence).
		Set("updated_at = $14", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = $15", m.ID).
		Where("version = $16", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/postgres: update anomaly: %w", err)
	}
	if err := s.checkVersioned(ctx, res, sqlmodel.AnomaliesTable, m.ID, anomaly.ErrNotFound); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (s *Store) FlagOverdueAnomalies(ctx context.Context, now time.Time) (int64, error) {
	var models []sqlmodel.AnomalyModel
	err := s.pg.NewSelect(&models).
		Where("NOT is_overdue").
		Where("status = ANY($1)", sqlmodel.StatusNames(anomaly.OpenStatuses())).
		Where("due_by < $2", now.UTC()).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("revenue/postgres: find overdue anomalies: %w", err)
	}
	due := make([]overdueRow, len(models))
	for i, m := range models {
		due[i] = overdueRow{ID: m.ID, Version: m.Version, DueBy: m.DueBy}
	}
	return flagOverdue[sqlmodel.AnomalyModel](ctx, s, due, now)
}

// ==================== Coding Store ====================

func (s *Store) CreateCoding(ctx context.Context, r *coding.Record) error {
	m, err := sqlmodel.ToCodingModel(r)
	if err != nil {
		return err
	}
	m.Version = 1
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: coding record %s", types.ErrAlreadyExists, r.Number)
		}
		return fmt.Errorf("revenue/postgres: create coding: %w", err)
	}
	r.Version = 1
	return nil
}

func (s *Store) GetCoding(ctx context.Context, codingID id.CodingID) (*coding.Record, error) {
	m := new(sqlmodel.CodingModel)
	if err := s.pg.NewSelect(m).Where("id = $1", codingID.String()).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, coding.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/postgres: get coding: %w", err)
	}
	return sqlmodel.FromCodingModel(m)
}

func (s *Store) ListCodings(ctx context.Context, opts coding.ListOpts) ([]*coding.Record, error) {
	var models []sqlmodel.CodingModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	filter := func(col, val string) {
		if val == "" {
			return
		}
		argIdx++
		q = q.Where(fmt.Sprintf("%s = $%d", col, argIdx), val)
	}
	filter("status", string(opts.Status))
	filter("encounter_id", opts.EncounterID)
	filter("patient_id", opts.PatientID)
	filter("sync_status", string(opts.SyncStatus))

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/postgres: list codings: %w", err)
	}
	return fromModels(models, sqlmodel.FromCodingModel)
}

func (s *Store) UpdateCoding(ctx context.Context, r *coding.Record) error {
	m, err := sqlmodel.ToCodingModel(r)
	if err != nil {
		return err
	}
	res, err := s.pg.NewUpdate((*sqlmodel.CodingModel)(nil)).
		Set("status = $1", m.Status).
		Set("master_bill_id = $2", m.MasterBillID).
		Set("procedure_codes = $3::jsonb", m.Procedures).
		Set("diagnosis_codes = $4::jsonb", m.Diagnoses).
		Set("coder = $5", m.Coder).
		Set("reviewer = $6", m.Reviewer).
		Set("return_reason = $7", m.ReturnReason).
		Set("submitted_at = $8", m.SubmittedAt).
		Set("approved_at = $9", m.ApprovedAt).
		Set("sync_status = $10", m.SyncStatus).
		Set("billing_sync = $11::jsonb", m.BillingSync).
		Set("due_by = $12", m.DueBy).
		Set("is_overdue = $13", m.IsOverdue).
		Set("history = $14::jsonb", m.History).
		Set("audit = $15::jsonb", m.Audit).
		Set("updated_at = $16", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = $17", m.ID).
		Where("version = $18", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/postgres: update coding: %w", err)
	}
	if err := s.checkVersioned(ctx, res, sqlmodel.CodingsTable, m.ID, coding.ErrNotFound); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *Store) FlagOverdueCodings(ctx context.Context, now time.Time) (int64, error) {
	var models []sqlmodel.CodingModel
	err := s.pg.NewSelect(&models).
		Where("NOT is_overdue").
		Where("status = ANY($1)", sqlmodel.StatusNames(coding.OpenStatuses())).
		Where("due_by < $2", now.UTC()).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("revenue/postgres: find overdue codings: %w", err)
	}
	due := make([]overdueRow, len(models))
	for i, m := range models {
		due[i] = overdueRow{ID: m.ID, Version: m.Version, DueBy: m.DueBy}
	}
	return flagOverdue[sqlmodel.CodingModel](ctx, s, due, now)
}

// ==================== Tariff Store ====================

func (s *Store) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	if _, err := s.pg.NewInsert(sqlmodel.ToTariffModel(t)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tariff %s", types.ErrAlreadyExists, t.Code)
		}
		return fmt.Errorf("revenue/postgres: create tariff: %w", err)
	}
	return nil
}

func (s *Store) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	return s.findTariff(ctx, "id = $1", tariffID.String())
}

func (s *Store) GetTariffByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	return s.findTariff(ctx, "code = $1", code)
}

func (s *Store) findTariff(ctx context.Context, where string, arg any) (*tariff.Tariff, error) {
	m := new(sqlmodel.TariffModel)
	if err := s.pg.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, tariff.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/postgres: get tariff: %w", err)
	}
	return sqlmodel.FromTariffModel(m)
}

func (s *Store) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	var models []sqlmodel.TariffModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Department != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("department = $%d", argIdx), string(opts.Department))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("code ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/postgres: list tariffs: %w", err)
	}
	return fromModels(models, sqlmodel.FromTariffModel)
}

func (s *Store) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	res, err := s.pg.NewUpdate(sqlmodel.ToTariffModel(t)).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tariff %s", types.ErrAlreadyExists, t.Code)
		}
		return fmt.Errorf("revenue/postgres: update tariff: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tariff.ErrNotFound
	}
	return nil
}

func (s *Store) ArchiveTariff(ctx context.Context, tariffID id.TariffID) error {
	res, err := s.pg.NewUpdate((*sqlmodel.TariffModel)(nil)).
		Set("status = $1", string(tariff.StatusArchived)).
		Set("updated_at = $2", time.Now().UTC()).
		Where("id = $3", tariffID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/postgres: archive tariff: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tariff.ErrNotFound
	}
	return nil
}

// ==================== Helpers ====================

type overdueRow struct {
	ID      string
	Version int64
	DueBy   time.Time
}

// flagOverdue sets the overdue flag on each row that still has the version
// it was selected with. Rows changed in between are left for the next sweep.
func flagOverdue[M any](ctx context.Context, s *Store, rows []overdueRow, now time.Time) (int64, error) {
	var n int64
	for _, row := range rows {
		entry, err := sqlmodel.OverdueEntry(row.DueBy, now, true)
		if err != nil {
			return n, err
		}
		res, err := s.pg.NewUpdate((*M)(nil)).
			Set("is_overdue = TRUE").
			Set("updated_at = $1", now.UTC()).
			Set("audit = audit || $2::jsonb", entry).
			Set("version = version + 1").
			Where("id = $3", row.ID).
			Where("version = $4", row.Version).
			Where("NOT is_overdue").
			Exec(ctx)
		if err != nil {
			return n, fmt.Errorf("revenue/postgres: flag overdue: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return n, err
		}
		n += affected
	}
	return n, nil
}

// checkVersioned turns a zero-row versioned update into ErrNotFound or
// ErrConcurrencyConflict.
func (s *Store) checkVersioned(ctx context.Context, res sql.Result, table, rowID string, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var n int64
	err = s.pg.NewRaw("SELECT COUNT(*) FROM "+table+" WHERE id = $1", rowID).Scan(ctx, &n)
	if err != nil {
		return fmt.Errorf("revenue/postgres: check version: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return types.ErrConcurrencyConflict
}

// billsInOrder converts models and arranges them in keys order.
func billsInOrder(keys []string, models []sqlmodel.BillModel) ([]*bill.Bill, error) {
	out := make([]*bill.Bill, 0, len(models))
	for _, key := range keys {
		i := slices.IndexFunc(models, func(m sqlmodel.BillModel) bool { return m.ID == key })
		if i < 0 {
			continue
		}
		b, err := sqlmodel.FromBillModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func fromModels[M, T any](models []M, convert func(*M) (T, error)) ([]T, error) {
	result := make([]T, len(models))
	for i := range models {
		v, err := convert(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
