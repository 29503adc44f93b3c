package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// Collection name constants.
const (
	colSequences = "rev_sequences"
	colBills     = "rev_bills"
	colAnomalies = "rev_anomalies"
	colCodings   = "rev_codings"
	colTariffs   = "rev_tariffs"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all revenue collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("revenue/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m sequenceModel
	err := s.mdb.Collection(colSequences).FindOneAndUpdate(ctx,
		bson.M{"_id": key.String()},
		bson.M{
			"$inc": bson.M{"value": 1},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, types.NotFound("sequence " + key.String())
		}
		return 0, fmt.Errorf("revenue/mongo: increment sequence: %w", err)
	}
	return m.Value, nil
}

// CreateSequence upserts the counter with an update pipeline so that a
// fresh document starts at seed+1 and an existing one is incremented.
// Two racing upserts can collide on _id; the loser retries once and then
// finds the document in place.
func (s *Store) CreateSequence(ctx context.Context, key sequence.Key, seed int64) (int64, error) {
	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"doc_type":   string(key.DocType),
			"day":        key.Day,
			"value":      bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$value", seed}}, 1}},
			"updated_at": now(),
		}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var m sequenceModel
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.mdb.Collection(colSequences).
			FindOneAndUpdate(ctx, bson.M{"_id": key.String()}, pipeline, opts).
			Decode(&m)
		if err == nil {
			return m.Value, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return 0, fmt.Errorf("revenue/mongo: create sequence: %w", err)
}

func (s *Store) PeekSequence(ctx context.Context, key sequence.Key) (int64, error) {
	var m sequenceModel
	err := s.mdb.Collection(colSequences).FindOne(ctx, bson.M{"_id": key.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("revenue/mongo: peek sequence: %w", err)
	}
	return m.Value, nil
}

func (s *Store) CountDocuments(ctx context.Context, key sequence.Key) (int64, error) {
	prefix := bson.M{"$regex": "^" + regexp.QuoteMeta(key.NumberPrefix())}

	var col string
	switch key.DocType {
	case sequence.DocBill, sequence.DocMasterBill:
		col = colBills
	case sequence.DocAnomaly:
		col = colAnomalies
	case sequence.DocCoding:
		col = colCodings
	case sequence.DocReceipt:
		return s.countReceipts(ctx, prefix)
	default:
		return 0, nil
	}

	n, err := s.mdb.Collection(col).CountDocuments(ctx, bson.M{"number": prefix})
	if err != nil {
		return 0, fmt.Errorf("revenue/mongo: count documents: %w", err)
	}
	return n, nil
}

// countReceipts counts payment receipts embedded in bills.
func (s *Store) countReceipts(ctx context.Context, prefix bson.M) (int64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"payments.receipt_number": prefix}},
		bson.M{"$unwind": "$payments"},
		bson.M{"$match": bson.M{"payments.receipt_number": prefix}},
		bson.M{"$count": "total"},
	}

	cursor, err := s.mdb.Collection(colBills).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("revenue/mongo: count receipts: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("revenue/mongo: count receipts decode: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// ==================== Bill Store ====================

func (s *Store) CreateBill(ctx context.Context, b *bill.Bill) error {
	m := toBillModel(b)
	m.Version = 1
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: bill %s", types.ErrAlreadyExists, b.Number)
		}
		return fmt.Errorf("revenue/mongo: create bill: %w", err)
	}
	b.Version = 1
	return nil
}

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	return s.findBill(ctx, bson.M{"_id": billID.String()})
}

func (s *Store) GetBillByNumber(ctx context.Context, number string) (*bill.Bill, error) {
	return s.findBill(ctx, bson.M{"number": number})
}

func (s *Store) GetMasterBill(ctx context.Context, encounterID string) (*bill.Bill, error) {
	return s.findBill(ctx, bson.M{"kind": string(bill.KindMaster), "encounter_id": encounterID})
}

func (s *Store) FindOpenDepartmentBill(ctx context.Context, encounterID string, dept bill.Department) (*bill.Bill, error) {
	return s.findBill(ctx, openDepartmentFilter(bson.M{
		"encounter_id": encounterID,
		"department":   string(dept),
	}))
}

func (s *Store) findBill(ctx context.Context, filter bson.M) (*bill.Bill, error) {
	var m billModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/mongo: get bill: %w", err)
	}
	return fromBillModel(&m)
}

func (s *Store) GetBills(ctx context.Context, ids []id.BillID) ([]*bill.Bill, error) {
	if len(ids) == 0 {
		return []*bill.Bill{}, nil
	}
	keys := make([]string, len(ids))
	for i, billID := range ids {
		keys[i] = billID.String()
	}

	var models []billModel
	if err := s.mdb.NewFind(&models).Filter(bson.M{"_id": bson.M{"$in": keys}}).Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/mongo: get bills: %w", err)
	}

	out := make([]*bill.Bill, 0, len(models))
	for _, key := range keys {
		i := slices.IndexFunc(models, func(m billModel) bool { return m.ID == key })
		if i < 0 {
			continue
		}
		b, err := fromBillModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	var models []billModel

	filter := bson.M{}
	setIf(filter, "patient_id", opts.PatientID)
	setIf(filter, "encounter_id", opts.EncounterID)
	setIf(filter, "kind", string(opts.Kind))
	setIf(filter, "department", string(opts.Department))
	setIf(filter, "status", string(opts.Status))

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/mongo: list bills: %w", err)
	}
	return fromModels(models, fromBillModel)
}

func (s *Store) UpdateBill(ctx context.Context, b *bill.Bill) error {
	m := toBillModel(b)
	prev := m.Version
	m.Version++

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": prev}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: bill %s", types.ErrAlreadyExists, b.Number)
		}
		return fmt.Errorf("revenue/mongo: update bill: %w", err)
	}
	if err := s.checkVersioned(ctx, res.MatchedCount(), colBills, m.ID, bill.ErrNotFound); err != nil {
		return err
	}
	b.Version = m.Version
	return nil
}

// ==================== Anomaly Store ====================

func (s *Store) CreateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	m := toAnomalyModel(a)
	m.Version = 1
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: anomaly %s", types.ErrAlreadyExists, a.OpenKey)
		}
		return fmt.Errorf("revenue/mongo: create anomaly: %w", err)
	}
	a.Version = 1
	return nil
}

func (s *Store) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	return s.findAnomaly(ctx, bson.M{"_id": anomalyID.String()})
}

func (s *Store) FindOpenAnomaly(ctx context.Context, openKey string) (*anomaly.Anomaly, error) {
	if openKey == "" {
		return nil, anomaly.ErrNotFound
	}
	return s.findAnomaly(ctx, bson.M{"open_key": openKey})
}

func (s *Store) findAnomaly(ctx context.Context, filter bson.M) (*anomaly.Anomaly, error) {
	var m anomalyModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, anomaly.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/mongo: get anomaly: %w", err)
	}
	return fromAnomalyModel(&m)
}

func (s *Store) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	var models []anomalyModel

	filter := bson.M{}
	setIf(filter, "status", string(opts.Status))
	setIf(filter, "category", string(opts.Category))
	setIf(filter, "severity", string(opts.Severity))
	setIf(filter, "encounter_id", opts.EncounterID)
	setIf(filter, "patient_id", opts.PatientID)
	setIf(filter, "assigned_to", opts.AssignedTo)
	if opts.OverdueOnly {
		filter["is_overdue"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/mongo: list anomalies: %w", err)
	}
	return fromModels(models, fromAnomalyModel)
}

func (s *Store) UpdateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	m := toAnomalyModel(a)
	prev := m.Version
	m.Version++

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": prev}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: anomaly %s", types.ErrAlreadyExists, a.OpenKey)
		}
		return fmt.Errorf("revenue/mongo: update anomaly: %w", err)
	}
	if err := s.checkVersioned(ctx, res.MatchedCount(), colAnomalies, m.ID, anomaly.ErrNotFound); err != nil {
		return err
	}
	a.Version = m.Version
	return nil
}

func (s *Store) FlagOverdueAnomalies(ctx context.Context, now time.Time) (int64, error) {
	var models []anomalyModel
	err := s.mdb.NewFind(&models).
		Filter(overdueFilter(anomaly.OpenStatuses(), now)).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("revenue/mongo: find overdue anomalies: %w", err)
	}
	due := make([]overdueDoc, len(models))
	for i, m := range models {
		due[i] = overdueDoc{ID: m.ID, Version: m.Version, DueBy: m.DueBy}
	}
	return s.flagOverdue(ctx, colAnomalies, due, now)
}

// ==================== Coding Store ====================

func (s *Store) CreateCoding(ctx context.Context, r *coding.Record) error {
	m := toCodingModel(r)
	m.Version = 1
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: coding record %s", types.ErrAlreadyExists, r.Number)
		}
		return fmt.Errorf("revenue/mongo: create coding: %w", err)
	}
	r.Version = 1
	return nil
}

func (s *Store) GetCoding(ctx context.Context, codingID id.CodingID) (*coding.Record, error) {
	var m codingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": codingID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, coding.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/mongo: get coding: %w", err)
	}
	return fromCodingModel(&m)
}

func (s *Store) ListCodings(ctx context.Context, opts coding.ListOpts) ([]*coding.Record, error) {
	var models []codingModel

	filter := bson.M{}
	setIf(filter, "status", string(opts.Status))
	setIf(filter, "encounter_id", opts.EncounterID)
	setIf(filter, "patient_id", opts.PatientID)
	setIf(filter, "billing_sync.status", string(opts.SyncStatus))

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/mongo: list codings: %w", err)
	}
	return fromModels(models, fromCodingModel)
}

func (s *Store) UpdateCoding(ctx context.Context, r *coding.Record) error {
	m := toCodingModel(r)
	prev := m.Version
	m.Version++

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": prev}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/mongo: update coding: %w", err)
	}
	if err := s.checkVersioned(ctx, res.MatchedCount(), colCodings, m.ID, coding.ErrNotFound); err != nil {
		return err
	}
	r.Version = m.Version
	return nil
}

func (s *Store) FlagOverdueCodings(ctx context.Context, now time.Time) (int64, error) {
	var models []codingModel
	err := s.mdb.NewFind(&models).
		Filter(overdueFilter(coding.OpenStatuses(), now)).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("revenue/mongo: find overdue codings: %w", err)
	}
	due := make([]overdueDoc, len(models))
	for i, m := range models {
		due[i] = overdueDoc{ID: m.ID, Version: m.Version, DueBy: m.DueBy}
	}
	return s.flagOverdue(ctx, colCodings, due, now)
}

// ==================== Tariff Store ====================

func (s *Store) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	if _, err := s.mdb.NewInsert(toTariffModel(t)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: tariff %s", types.ErrAlreadyExists, t.Code)
		}
		return fmt.Errorf("revenue/mongo: create tariff: %w", err)
	}
	return nil
}

func (s *Store) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	return s.findTariff(ctx, bson.M{"_id": tariffID.String()})
}

func (s *Store) GetTariffByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	return s.findTariff(ctx, bson.M{"code": code})
}

func (s *Store) findTariff(ctx context.Context, filter bson.M) (*tariff.Tariff, error) {
	var m tariffModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, tariff.ErrNotFound
		}
		return nil, fmt.Errorf("revenue/mongo: get tariff: %w", err)
	}
	return fromTariffModel(&m)
}

func (s *Store) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	var models []tariffModel

	filter := bson.M{}
	setIf(filter, "status", string(opts.Status))
	setIf(filter, "department", string(opts.Department))

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "code", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revenue/mongo: list tariffs: %w", err)
	}
	return fromModels(models, fromTariffModel)
}

func (s *Store) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	m := toTariffModel(t)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: tariff %s", types.ErrAlreadyExists, t.Code)
		}
		return fmt.Errorf("revenue/mongo: update tariff: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tariff.ErrNotFound
	}
	return nil
}

func (s *Store) ArchiveTariff(ctx context.Context, tariffID id.TariffID) error {
	res, err := s.mdb.NewUpdate((*tariffModel)(nil)).
		Filter(bson.M{"_id": tariffID.String()}).
		Set("status", string(tariff.StatusArchived)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revenue/mongo: archive tariff: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tariff.ErrNotFound
	}
	return nil
}

// ==================== Helpers ====================

type overdueDoc struct {
	ID      string
	Version int64
	DueBy   time.Time
}

// flagOverdue marks each document that still carries the version it was
// selected with. Documents changed in between wait for the next sweep.
func (s *Store) flagOverdue(ctx context.Context, col string, docs []overdueDoc, now time.Time) (int64, error) {
	var n int64
	for _, doc := range docs {
		res, err := s.mdb.Collection(col).UpdateOne(ctx,
			bson.M{"_id": doc.ID, "version": doc.Version, "is_overdue": false},
			bson.M{
				"$set":  bson.M{"is_overdue": true, "updated_at": now.UTC()},
				"$inc":  bson.M{"version": 1},
				"$push": bson.M{"audit": audit.Overdue(doc.DueBy, now)},
			},
		)
		if err != nil {
			return n, fmt.Errorf("revenue/mongo: flag overdue: %w", err)
		}
		n += res.ModifiedCount
	}
	return n, nil
}

// checkVersioned turns a versioned update that matched nothing into
// ErrNotFound or ErrConcurrencyConflict.
func (s *Store) checkVersioned(ctx context.Context, matched int64, col, docID string, notFound error) error {
	if matched > 0 {
		return nil
	}
	n, err := s.mdb.Collection(col).CountDocuments(ctx, bson.M{"_id": docID})
	if err != nil {
		return fmt.Errorf("revenue/mongo: check version: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return types.ErrConcurrencyConflict
}

func overdueFilter[S ~string](open []S, now time.Time) bson.M {
	statuses := make(bson.A, len(open))
	for i, st := range open {
		statuses[i] = string(st)
	}
	return bson.M{
		"is_overdue": false,
		"status":     bson.M{"$in": statuses},
		"due_by":     bson.M{"$lt": now.UTC()},
	}
}

func openDepartmentFilter(filter bson.M) bson.M {
	filter["kind"] = string(bill.KindDepartment)
	filter["status"] = string(bill.StatusDraft)
	filter["is_locked"] = false
	return filter
}

func setIf(filter bson.M, field, val string) {
	if val != "" {
		filter[field] = val
	}
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

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all revenue collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBills: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "encounter_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetName("uniq_master_per_encounter").
					SetPartialFilterExpression(bson.M{"kind": string(bill.KindMaster)}),
			},
			{
				Keys: bson.D{{Key: "encounter_id", Value: 1}, {Key: "department", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetName("uniq_open_department_bill").
					SetPartialFilterExpression(openDepartmentFilter(bson.M{})),
			},
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "encounter_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "payments.receipt_number", Value: 1}}},
		},
		colAnomalies: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "open_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"open_key": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: -1}}},
			{Keys: bson.D{{Key: "is_overdue", Value: 1}, {Key: "due_by", Value: 1}}},
		},
		colCodings: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "encounter_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "billing_sync.status", Value: 1}}},
			{Keys: bson.D{{Key: "is_overdue", Value: 1}, {Key: "due_by", Value: 1}}},
		},
		colTariffs: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "department", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
}
