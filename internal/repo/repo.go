package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitline/internal/config"
	"permitline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// InsertPermitTx writes a freshly created permit aggregate: the core row,
// its stage pipeline, and the creation note.
func (r Repo) InsertPermitTx(ctx context.Context, tx *sql.Tx, p domain.Permit) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO permits(
id,owner_id,application_ref,council_ref,property_address,postcode,type,status,current_stage,
submitted_at,validated_at,target_decision,consultation_start,consultation_end,committee_date,decision_date,conditions_deadline,expiry,
officer_name,officer_contact,officer_assigned_at,fee_amount,fee_paid,fee_paid_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.OwnerID, nullable(p.ApplicationRef), nullable(p.CouncilRef), p.PropertyAddress, p.Postcode, p.Type, p.Status, p.CurrentStage,
		nullableStringPtr(p.KeyDates.Submitted), nullableStringPtr(p.KeyDates.Validated), nullableStringPtr(p.KeyDates.TargetDecision),
		nullableStringPtr(p.KeyDates.ConsultationStart), nullableStringPtr(p.KeyDates.ConsultationEnd), nullableStringPtr(p.KeyDates.CommitteeDate),
		nullableStringPtr(p.KeyDates.DecisionDate), nullableStringPtr(p.KeyDates.ConditionsDeadline), nullableStringPtr(p.KeyDates.Expiry),
		officerField(p.Officer, func(o domain.Officer) string { return o.Name }),
		officerField(p.Officer, func(o domain.Officer) string { return o.Contact }),
		officerField(p.Officer, func(o domain.Officer) string { return o.AssignedAt }),
		p.Fees.Amount, boolInt(p.Fees.Paid), nullableStringPtr(p.Fees.PaidAt), p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert permit: %w", err)
	}
	if err := r.ReplaceStagesTx(ctx, tx, p.ID, p.Stages); err != nil {
		return err
	}
	for _, n := range p.Notes {
		if err := r.InsertNoteTx(ctx, tx, p.ID, n); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePermitCoreTx rewrites the mutable core columns (status, stage, key
// dates, officer, fees, updated_at). Child rows are managed separately.
func (r Repo) UpdatePermitCoreTx(ctx context.Context, tx *sql.Tx, p domain.Permit) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET
application_ref=?, council_ref=?, status=?, current_stage=?,
submitted_at=?, validated_at=?, target_decision=?, consultation_start=?, consultation_end=?,
committee_date=?, decision_date=?, conditions_deadline=?, expiry=?,
officer_name=?, officer_contact=?, officer_assigned_at=?,
fee_amount=?, fee_paid=?, fee_paid_at=?, updated_at=?
WHERE id=?`,
		nullable(p.ApplicationRef), nullable(p.CouncilRef), p.Status, p.CurrentStage,
		nullableStringPtr(p.KeyDates.Submitted), nullableStringPtr(p.KeyDates.Validated), nullableStringPtr(p.KeyDates.TargetDecision),
		nullableStringPtr(p.KeyDates.ConsultationStart), nullableStringPtr(p.KeyDates.ConsultationEnd),
		nullableStringPtr(p.KeyDates.CommitteeDate), nullableStringPtr(p.KeyDates.DecisionDate),
		nullableStringPtr(p.KeyDates.ConditionsDeadline), nullableStringPtr(p.KeyDates.Expiry),
		officerField(p.Officer, func(o domain.Officer) string { return o.Name }),
		officerField(p.Officer, func(o domain.Officer) string { return o.Contact }),
		officerField(p.Officer, func(o domain.Officer) string { return o.AssignedAt }),
		p.Fees.Amount, boolInt(p.Fees.Paid), nullableStringPtr(p.Fees.PaidAt), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchPermitTx bumps updated_at only.
func (r Repo) TouchPermitTx(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET updated_at=? WHERE id=?`, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceStagesTx rewrites the full stage pipeline for a permit.
func (r Repo) ReplaceStagesTx(ctx context.Context, tx *sql.Tx, permitID string, stages []domain.StageProgress) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM permit_stages WHERE permit_id=?`, permitID); err != nil {
		return err
	}
	for i, s := range stages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO permit_stages(permit_id,position,stage,status,start_date,completed_date,estimated_days,actual_days)
VALUES (?,?,?,?,?,?,?,?)`,
			permitID, i, s.Stage, s.Status, nullableStringPtr(s.StartDate), nullableStringPtr(s.CompletedDate), s.EstimatedDays, nullableIntPtr(s.ActualDays)); err != nil {
			return fmt.Errorf("insert stage %s: %w", s.Stage, err)
		}
	}
	return nil
}

func (r Repo) InsertConditionTx(ctx context.Context, tx *sql.Tx, permitID string, c domain.Condition) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_conditions(id,permit_id,number,type,description,status,deadline,submitted_date,discharged_date,discharge_ref,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, permitID, c.Number, c.Type, c.Description, c.Status, nullableStringPtr(c.Deadline),
		nullableStringPtr(c.SubmittedDate), nullableStringPtr(c.DischargedDate), nullable(c.DischargeRef), c.CreatedAt)
	return err
}

func (r Repo) UpdateConditionTx(ctx context.Context, tx *sql.Tx, c domain.Condition) error {
	res, err := tx.ExecContext(ctx, `UPDATE permit_conditions SET status=?, deadline=?, submitted_date=?, discharged_date=?, discharge_ref=? WHERE id=?`,
		c.Status, nullableStringPtr(c.Deadline), nullableStringPtr(c.SubmittedDate), nullableStringPtr(c.DischargedDate), nullable(c.DischargeRef), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertConsulteeTx replaces the current response for a consultee name,
// keeping the id minted when the name was first recorded.
func (r Repo) UpsertConsulteeTx(ctx context.Context, tx *sql.Tx, permitID string, c domain.ConsulteeResponse) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_consultees(id,permit_id,name,type,status,recommendation,responded_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(permit_id,name) DO UPDATE SET type=excluded.type, status=excluded.status, recommendation=excluded.recommendation, responded_at=excluded.responded_at`,
		c.ID, permitID, c.Name, c.Type, c.Status, nullable(c.Recommendation), nullableStringPtr(c.RespondedAt))
	return err
}

func (r Repo) InsertNoteTx(ctx context.Context, tx *sql.Tx, permitID string, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_notes(id,permit_id,author,category,content,created_at) VALUES (?,?,?,?,?,?)`,
		n.ID, permitID, n.Author, n.Category, n.Content, n.CreatedAt)
	return err
}

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, permitID string, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_documents(id,permit_id,name,category,status,uploaded_at) VALUES (?,?,?,?,?,?)`,
		d.ID, permitID, d.Name, d.Category, d.Status, d.UploadedAt)
	return err
}

func (r Repo) UpdateDocumentStatusTx(ctx context.Context, tx *sql.Tx, docID, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permit_documents SET status=? WHERE id=?`, status, docID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertFeeItemTx(ctx context.Context, tx *sql.Tx, permitID string, it domain.FeeItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_fee_items(id,permit_id,description,amount,added_at) VALUES (?,?,?,?,?)`,
		it.ID, permitID, it.Description, it.Amount, it.AddedAt)
	return err
}

// GetPermit loads the full aggregate.
func (r Repo) GetPermit(ctx context.Context, id string) (domain.Permit, error) {
	var p domain.Permit
	var appRef, councilRef sql.NullString
	var officerName, officerContact, officerAssigned sql.NullString
	var feePaid int
	var feePaidAt sql.NullString
	kd := make([]sql.NullString, 9)
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,application_ref,council_ref,property_address,postcode,type,status,current_stage,
submitted_at,validated_at,target_decision,consultation_start,consultation_end,committee_date,decision_date,conditions_deadline,expiry,
officer_name,officer_contact,officer_assigned_at,fee_amount,fee_paid,fee_paid_at,created_at,updated_at
FROM permits WHERE id=?`, id).
		Scan(&p.ID, &p.OwnerID, &appRef, &councilRef, &p.PropertyAddress, &p.Postcode, &p.Type, &p.Status, &p.CurrentStage,
			&kd[0], &kd[1], &kd[2], &kd[3], &kd[4], &kd[5], &kd[6], &kd[7], &kd[8],
			&officerName, &officerContact, &officerAssigned, &p.Fees.Amount, &feePaid, &feePaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.ApplicationRef = stringOrEmpty(appRef)
	p.CouncilRef = stringOrEmpty(councilRef)
	p.KeyDates = domain.KeyDates{
		Submitted:          optString(kd[0]),
		Validated:          optString(kd[1]),
		TargetDecision:     optString(kd[2]),
		ConsultationStart:  optString(kd[3]),
		ConsultationEnd:    optString(kd[4]),
		CommitteeDate:      optString(kd[5]),
		DecisionDate:       optString(kd[6]),
		ConditionsDeadline: optString(kd[7]),
		Expiry:             optString(kd[8]),
	}
	if officerName.Valid {
		p.Officer = &domain.Officer{
			Name:       officerName.String,
			Contact:    officerContact.String,
			AssignedAt: officerAssigned.String,
		}
	}
	p.Fees.Paid = feePaid != 0
	p.Fees.PaidAt = optString(feePaidAt)
	if err := r.loadChildren(ctx, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) loadChildren(ctx context.Context, p *domain.Permit) error {
	var err error
	if p.Stages, err = r.listStages(ctx, p.ID); err != nil {
		return err
	}
	if p.Conditions, err = r.ListConditions(ctx, p.ID); err != nil {
		return err
	}
	if p.Consultees, err = r.listConsultees(ctx, p.ID); err != nil {
		return err
	}
	if p.Documents, err = r.listDocuments(ctx, p.ID); err != nil {
		return err
	}
	if p.Notes, err = r.ListNotes(ctx, p.ID); err != nil {
		return err
	}
	if p.Fees.Items, err = r.listFeeItems(ctx, p.ID); err != nil {
		return err
	}
	return nil
}

func (r Repo) listStages(ctx context.Context, permitID string) ([]domain.StageProgress, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage,status,start_date,completed_date,estimated_days,actual_days FROM permit_stages WHERE permit_id=? ORDER BY position`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageProgress
	for rows.Next() {
		var s domain.StageProgress
		var start, completed sql.NullString
		var actual sql.NullInt64
		if err := rows.Scan(&s.Stage, &s.Status, &start, &completed, &s.EstimatedDays, &actual); err != nil {
			return nil, err
		}
		s.StartDate = optString(start)
		s.CompletedDate = optString(completed)
		if actual.Valid {
			v := int(actual.Int64)
			s.ActualDays = &v
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) ListConditions(ctx context.Context, permitID string) ([]domain.Condition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,number,type,description,status,deadline,submitted_date,discharged_date,discharge_ref,created_at FROM permit_conditions WHERE permit_id=? ORDER BY number`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Condition
	for rows.Next() {
		var c domain.Condition
		var deadline, submitted, discharged, ref sql.NullString
		if err := rows.Scan(&c.ID, &c.Number, &c.Type, &c.Description, &c.Status, &deadline, &submitted, &discharged, &ref, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Deadline = optString(deadline)
		c.SubmittedDate = optString(submitted)
		c.DischargedDate = optString(discharged)
		c.DischargeRef = stringOrEmpty(ref)
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) listConsultees(ctx context.Context, permitID string) ([]domain.ConsulteeResponse, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,type,status,recommendation,responded_at FROM permit_consultees WHERE permit_id=? ORDER BY name`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ConsulteeResponse
	for rows.Next() {
		var c domain.ConsulteeResponse
		var rec, responded sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Status, &rec, &responded); err != nil {
			return nil, err
		}
		c.Recommendation = stringOrEmpty(rec)
		c.RespondedAt = optString(responded)
		res = append(res, c)
	}
	return res, rows.Err()
}

// GetConsulteeID returns the existing id for a consultee name, or ErrNotFound.
func (r Repo) GetConsulteeID(ctx context.Context, permitID, name string) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM permit_consultees WHERE permit_id=? AND name=?`, permitID, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

func (r Repo) listDocuments(ctx context.Context, permitID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,category,status,uploaded_at FROM permit_documents WHERE permit_id=? ORDER BY uploaded_at, id`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Name, &d.Category, &d.Status, &d.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) ListNotes(ctx context.Context, permitID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,author,category,content,created_at FROM permit_notes WHERE permit_id=? ORDER BY created_at, id`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.Author, &n.Category, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) listFeeItems(ctx context.Context, permitID string) ([]domain.FeeItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,description,amount,added_at FROM permit_fee_items WHERE permit_id=? ORDER BY added_at, id`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FeeItem
	for rows.Next() {
		var it domain.FeeItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Amount, &it.AddedAt); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// PermitFilters narrows ListPermits.
type PermitFilters struct {
	OwnerID string
	Status  string
	Type    string
	Limit   int
}

// ListPermits returns full aggregates ordered by updated_at descending
// (most recently touched first).
func (r Repo) ListPermits(ctx context.Context, f PermitFilters) ([]domain.Permit, error) {
	var clauses []string
	var args []any
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id FROM permits ` + where + ` ORDER BY updated_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var res []domain.Permit
	for _, id := range ids {
		p, err := r.GetPermit(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// UpsertTrackerConfig stores the reference-data config as the single config
// row. The stored copy is authoritative once seeded.
func (r Repo) UpsertTrackerConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO tracker_configs(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetTrackerConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM tracker_configs WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// LatestEvents returns the newest events first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entity, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = stringOrEmpty(entity)
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func officerField(o *domain.Officer, pick func(domain.Officer) string) any {
	if o == nil {
		return nil
	}
	return nullable(pick(*o))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func optString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func stringOrEmpty(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}
