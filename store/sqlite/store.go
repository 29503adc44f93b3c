package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// BusyTimeout is how long a connection opened by Open waits on a locked
// database before failing with SQLITE_BUSY.
const BusyTimeout = 5 * time.Second

// Open connects a grove database to the SQLite file at path with WAL and
// a busy timeout, so concurrent counter increments queue instead of
// failing. Callers opening their own database should set
// _pragma=busy_timeout in the DSN.
func Open(ctx context.Context, path string) (*grove.DB, error) {
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, dsn(path)); err != nil {
		return nil, fmt.Errorf("revenue/sqlite: open %s: %w", path, err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("revenue/sqlite: open %s: %w", path, err)
	}
	return db, nil
}

func dsn(path string) string {
	if strings.Contains(path, "busy_timeout") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", path, sep, BusyTimeout.Milliseconds())
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("revenue/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("revenue/sqlite: migration failed: %w", err)
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
	err := s.sdb.NewRaw(`
		UPDATE rev_sequences SET value = value + 1, updated_at = datetime('now')
		WHERE doc_type = ? AND day = ?
		RETURNING value
	`, string(key.DocType), key.Day).Scan(ctx, &v)
	if err != nil {
		if isNoRows(err) {
			return 0, types.NotFound("sequence " + key.String())
		}
		return 0, fmt.Errorf("revenue/sqlite: increment sequence: %w", err)
	}
	return v, nil
}

func (s *Store) CreateSequence(ctx context.Context, key sequence.Key, seed int64) (int64, error) {
	var v int64
	err := s.sdb.NewRaw(`
		INSERT INTO rev_sequences (doc_type, day, value, updated_at)
		VALUES (?, ?, ? + 1, datetime('now'))
		ON CONFLICT (doc_type, day) DO UPDATE
		SET value = value + 1, updated_at = datetime('now')
		RETURNING value
	`, string(key.DocType), key.Day, seed).Scan(ctx, &v)
	if err != nil {
		return 0, fmt.Errorf("revenue/sqlite: create sequence: %w", err)
	}
	return v, nil
}

func (s *Store) PeekSequence(ctx context.Context, key sequence.Key) (int64, error) {
	var v int64
	err := s.sdb.NewRaw(`SELECT value FROM rev_sequences WHERE doc_type = ? AND day = ?`,
		string(key.DocType), key.Day).Scan(ctx, &v)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("revenue/sqlite: peek sequence: %w", err)
	}
	return v, nil
}

func (s *Store) CountDocuments(ctx context.Context, key sequence.Key) (int64, error) {
	var query string
	switch key.DocType {
	case sequence.DocBill, sequence.DocMasterBill:
		query = `SELECT COUNT(*) FROM rev_bills WHERE number LIKE ?`
	case sequence.DocReceipt:
		query = `SELECT COUNT(*) FROM rev_bills, json_each(rev_bills.payments) p
			WHERE json_extract(p.value, '$.receipt_number') LIKE ?`
	case sequence.DocAnomaly:
		query = `SELECT COUNT(*) FROM rev_anomalies WHERE number LIKE ?`
	case sequence.DocCoding:
		query = `SELECT COUNT(*) FROM rev_codings WHERE number LIKE ?`
	default:
		return 0, nil
	}

	var n int64
	if err := s.sdb.NewRaw(query, key.NumberPrefix()+"%").Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("revenue/sqlite: count documents: %w", err)
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
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: bill %s", types.ErrAlreadyExists, b.Number)
		}
		return fmt.Errorf("revenue/sqlite: create bill: %w", err)
	}
	b.Version = 1
	return nil
}

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	return s.findBill(ctx, "id = ?", billID.String())
}

func (s *Store) GetBillByNumber(ctx context.Context, number string) (*bill.Bill, error) {
	return s.findBill(ctx, "number = ?", number)
}

func (s *Store) GetMasterBill(ctx context.Context, encounterID string) (*bill.Bill, error) {
	return s.findBill(ctx, "kind = 'master' AND encounter_id = ?", encounterID)
}

func (s *Store) FindOpenDepartmentBill(ctx context.Context, encounterID string, dept bill.Department) (*bill.Bill, error) {
	m := new(sqlmodel.BillModel)
	err := s.sdb.NewSelect(m).
		Where("kind = 'department' AND status = 'draft' AND is_locked = 0").
		Where("encounter_id = ?", encounterID).
		Where("department = ?", string(dept)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/sqlite: find open department bill: %w", err)
	}
	return sqlmodel.FromBillModel(m)
}

func (s *Store) findBill(ctx context.Context, where string, arg any) (*bill.Bill, error) {
	m := new(sqlmodel.BillModel)
	if err := s.sdb.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/sqlite: get bill: %w", err)
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
	if err := s.sdb.NewSelect(&models).Where("id IN ("+placeholders(len(keys))+")", anys(keys)...).Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/sqlite: get bills: %w", err)
	}

	byID := make(map[string]*sqlmodel.BillModel, len(models))
	for i := range models {
		byID[models[i].ID] = &models[i]
	}
	out := make([]*bill.Bill, 0, len(models))
	for _, key := range keys {
		m, ok := byID[key]
		if !ok {
			continue
		}
		b, err := sqlmodel.FromBillModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	var models []sqlmodel.BillModel
	q := s.sdb.NewSelect(&models)

	if opts.PatientID != "" {
		q = q.Where("patient_id = ?", opts.PatientID)
	}
	if opts.EncounterID != "" {
		q = q.Where("encounter_id = ?", opts.EncounterID)
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Department != "" {
		q = q.Where("department = ?", string(opts.Department))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, rowid ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/sqlite: list bills: %w", err)
	}
	return fromModels(models, sqlmodel.FromBillModel)
}

func (s *Store) UpdateBill(ctx context.Context, b *bill.Bill) error {
	m, err := sqlmodel.ToBillModel(b)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate((*sqlmodel.BillModel)(nil)).
		Set("subtotal = ?", m.Subtotal).
		Set("total_discount = ?", m.TotalDiscount).
		Set("total_tax = ?", m.TotalTax).
		Set("grand_total = ?", m.GrandTotal).
		Set("paid_amount = ?", m.PaidAmount).
		Set("balance_amount = ?", m.BalanceAmount).
		Set("payment_status = ?", m.PaymentStatus).
		Set("status = ?", m.Status).
		Set("is_locked = ?", m.IsLocked).
		Set("locked_at = ?", m.LockedAt).
		Set("finalized_at = ?", m.FinalizedAt).
		Set("cancelled_at = ?", m.CancelledAt).
		Set("cancel_reason = ?", m.CancelReason).
		Set("master_id = ?", m.MasterID).
		Set("items = ?", m.Items).
		Set("payments = ?", m.Payments).
		Set("linked_bills = ?", m.LinkedBills).
		Set("department_payments = ?", m.DepartmentPayments).
		Set("rollup = ?", m.Rollup).
		Set("audit = ?", m.Audit).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/sqlite: update bill: %w", err)
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
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: anomaly %s", types.ErrAlreadyExists, a.OpenKey)
		}
		return fmt.Errorf("revenue/sqlite: create anomaly: %w", err)
	}
	a.Version = 1
	return nil
}

func (s *Store) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	return s.findAnomaly(ctx, "id = ?", anomalyID.String())
}

func (s *Store) FindOpenAnomaly(ctx context.Context, openKey string) (*anomaly.Anomaly, error) {
	if openKey == "" {
		return nil, anomaly.ErrNotFound
	}
	return s.findAnomaly(ctx, "open_key = ?", openKey)
}

func (s *Store) findAnomaly(ctx context.Context, where string, arg any) (*anomaly.Anomaly, error) {
	m := new(sqlmodel.AnomalyModel)
	if err := s.sdb.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, anomaly.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/sqlite: get anomaly: %w", err)
	}
	return sqlmodel.FromAnomalyModel(m)
}

func (s *Store) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	var models []sqlmodel.AnomalyModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Category != "" {
		q = q.Where("category = ?", string(opts.Category))
	}
	if opts.Severity != "" {
		q = q.Where("severity = ?", string(opts.Severity))
	}
	if opts.EncounterID != "" {
		q = q.Where("encounter_id = ?", opts.EncounterID)
	}
	if opts.PatientID != "" {
		q = q.Where("patient_id = ?", opts.PatientID)
	}
	if opts.AssignedTo != "" {
		q = q.Where("assigned_to = ?", opts.AssignedTo)
	}
	if opts.OverdueOnly {
		q = q.Where("is_overdue = 1")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, rowid ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/sqlite: list anomalies: %w", err)
	}
	return fromModels(models, sqlmodel.FromAnomalyModel)
}

func (s *Store) UpdateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	m, err := sqlmodel.ToAnomalyModel(a)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate((*sqlmodel.AnomalyModel)(nil)).
		Set("status = ?", m.Status).
		Set("priority = ?", m.Priority).
		Set("assigned_to = ?", m.AssignedTo).
		Set("resolution = ?", m.Resolution).
		Set("dismissal = ?", m.Dismissal).
		Set("escalation_reason = ?", m.EscalationReason).
		Set("closed_at = ?", m.ClosedAt).
		Set("open_key = ?", m.OpenKey).
		Set("due_by = ?", m.DueBy).
		Set("is_overdue = ?", m.IsOverdue).
		Set("history = ?", m.History).
		Set("audit = ?", m.Audit).
		Set("evidence = ?", m.Evidence).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/sqlite: update anomaly: %w", err)
	}
	if err := s.checkVersioned(ctx, res, sqlmodel.AnomaliesTable, m.ID, anomaly.ErrNotFound); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (s *Store) FlagOverdueAnomalies(ctx context.Context, now time.Time) (int64, error) {
	open := sqlmodel.StatusNames(anomaly.OpenStatuses())
	var models []sqlmodel.AnomalyModel
	err := s.sdb.NewSelect(&models).
		Where("is_overdue = 0").
		Where("status IN ("+placeholders(len(open))+")", anys(open)...).
		Where("due_by < ?", now.UTC()).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("revenue/sqlite: find overdue anomalies: %w", err)
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
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: coding record %s", types.ErrAlreadyExists, r.Number)
		}
		return fmt.Errorf("revenue/sqlite: create coding: %w", err)
	}
	r.Version = 1
	return nil
}

func (s *Store) GetCoding(ctx context.Context, codingID id.CodingID) (*coding.Record, error) {
	m := new(sqlmodel.CodingModel)
	if err := s.sdb.NewSelect(m).Where("id = ?", codingID.String()).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, coding.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/sqlite: get coding: %w", err)
	}
	return sqlmodel.FromCodingModel(m)
}

func (s *Store) ListCodings(ctx context.Context, opts coding.ListOpts) ([]*coding.Record, error) {
	var models []sqlmodel.CodingModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.EncounterID != "" {
		q = q.Where("encounter_id = ?", opts.EncounterID)
	}
	if opts.PatientID != "" {
		q = q.Where("patient_id = ?", opts.PatientID)
	}
	if opts.SyncStatus != "" {
		q = q.Where("sync_status = ?", string(opts.SyncStatus))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, rowid ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/sqlite: list codings: %w", err)
	}
	return fromModels(models, sqlmodel.FromCodingModel)
}

func (s *Store) UpdateCoding(ctx context.Context, r *coding.Record) error {
	m, err := sqlmodel.ToCodingModel(r)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate((*sqlmodel.CodingModel)(nil)).
		Set("status = ?", m.Status).
		Set("master_bill_id = ?", m.MasterBillID).
		Set("procedure_codes = ?", m.Procedures).
		Set("diagnosis_codes = ?", m.Diagnoses).
		Set("coder = ?", m.Coder).
		Set("reviewer = ?", m.Reviewer).
		Set("return_reason = ?", m.ReturnReason).
		Set("submitted_at = ?", m.SubmittedAt).
		Set("approved_at = ?", m.ApprovedAt).
		Set("sync_status = ?", m.SyncStatus).
		Set("billing_sync = ?", m.BillingSync).
		Set("due_by = ?", m.DueBy).
		Set("is_overdue = ?", m.IsOverdue).
		Set("history = ?", m.History).
		Set("audit = ?", m.Audit).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/sqlite: update coding: %w", err)
	}
	if err := s.checkVersioned(ctx, res, sqlmodel.CodingsTable, m.ID, coding.ErrNotFound); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *Store) FlagOverdueCodings(ctx context.Context, now time.Time) (int64, error) {
	open := sqlmodel.StatusNames(coding.OpenStatuses())
	var models []sqlmodel.CodingModel
	err := s.sdb.NewSelect(&models).
		Where("is_overdue = 0").
		Where("status IN ("+placeholders(len(open))+")", anys(open)...).
		Where("due_by < ?", now.UTC()).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("revenue/sqlite: find overdue codings: %w", err)
	}
	due := make([]overdueRow, len(models))
	for i, m := range models {
		due[i] = overdueRow{ID: m.ID, Version: m.Version, DueBy: m.DueBy}
	}
	return flagOverdue[sqlmodel.CodingModel](ctx, s, due, now)
}

// ==================== Tariff Store ====================

func (s *Store) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	if _, err := s.sdb.NewInsert(sqlmodel.ToTariffModel(t)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tariff %s", types.ErrAlreadyExists, t.Code)
		}
		return fmt.Errorf("revenue/sqlite: create tariff: %w", err)
	}
	return nil
}

func (s *Store) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	return s.findTariff(ctx, "id = ?", tariffID.String())
}

func (s *Store) GetTariffByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	return s.findTariff(ctx, "code = ?", code)
}

func (s *Store) findTariff(ctx context.Context, where string, arg any) (*tariff.Tariff, error) {
	m := new(sqlmodel.TariffModel)
	if err := s.sdb.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, tariff.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/sqlite: get tariff: %w", err)
	}
	return sqlmodel.FromTariffModel(m)
}

func (s *Store) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	var models []sqlmodel.TariffModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Department != "" {
		q = q.Where("department = ?", string(opts.Department))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("code ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/sqlite: list tariffs: %w", err)
	}
	return fromModels(models, sqlmodel.FromTariffModel)
}

func (s *Store) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	res, err := s.sdb.NewUpdate(sqlmodel.ToTariffModel(t)).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tariff %s", types.ErrAlreadyExists, t.Code)
		}
		return fmt.Errorf("revenue/sqlite: update tariff: %w", err)
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
	res, err := s.sdb.NewUpdate((*sqlmodel.TariffModel)(nil)).
		Set("status = ?", string(tariff.StatusArchived)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", tariffID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/sqlite: archive tariff: %w", err)
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
		entry, err := sqlmodel.OverdueEntry(row.DueBy, now, false)
		if err != nil {
			return n, err
		}
		res, err := s.sdb.NewUpdate((*M)(nil)).
			Set("is_overdue = 1").
			Set("updated_at = ?", now.UTC()).
			Set("audit = json_insert(audit, '$[#]', json(?))", entry).
			Set("version = version + 1").
			Where("id = ?", row.ID).
			Where("version = ?", row.Version).
			Where("is_overdue = 0").
			Exec(ctx)
		if err != nil {
			return n, fmt.Errorf("revenue/sqlite: flag overdue: %w", err)
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
	err = s.sdb.NewRaw("SELECT COUNT(*) FROM "+table+" WHERE id = ?", rowID).Scan(ctx, &n)
	if err != nil {
		return fmt.Errorf("revenue/sqlite: check version: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return types.ErrConcurrencyConflict
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anys(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
