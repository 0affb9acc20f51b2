package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/events"
	"permitline/internal/repo"
)

// Tracker is the permit registry and lifecycle engine. All reference data
// (fees, statutory periods, stage templates, area benchmarks) comes from the
// injected Config; Now is injectable for tests.
type Tracker struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Tracker {
	return Tracker{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (t Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

var knownStatuses = map[string]bool{
	domain.StatusDraft:                  true,
	domain.StatusSubmitted:              true,
	domain.StatusValidated:              true,
	domain.StatusPendingDecision:        true,
	domain.StatusApproved:               true,
	domain.StatusApprovedWithConditions: true,
	domain.StatusRefused:                true,
	domain.StatusWithdrawn:              true,
	domain.StatusAppealed:               true,
}

// CreateOptions are parameters for creating a permit.
type CreateOptions struct {
	OwnerID         string
	PropertyAddress string
	Postcode        string
	Type            string
	ActorID         string
}

// Create registers a new permit in draft/preparation with its stage pipeline
// initialised from the per-type template and the fee fixed from config.
func (t Tracker) Create(ctx context.Context, opts CreateOptions) (domain.Permit, error) {
	if t.Config == nil {
		return domain.Permit{}, errors.New("config not loaded")
	}
	if opts.OwnerID == "" {
		return domain.Permit{}, errors.New("owner is required")
	}
	if opts.PropertyAddress == "" {
		return domain.Permit{}, errors.New("property address is required")
	}
	if opts.Postcode == "" {
		return domain.Permit{}, errors.New("postcode is required")
	}
	fee, err := t.Config.FeeFor(opts.Type)
	if err != nil {
		return domain.Permit{}, err
	}
	now := t.now().UTC()
	nowStr := now.Format(time.RFC3339)
	p := domain.Permit{
		ID:              uuid.New().String(),
		OwnerID:         opts.OwnerID,
		PropertyAddress: opts.PropertyAddress,
		Postcode:        strings.ToUpper(strings.TrimSpace(opts.Postcode)),
		Type:            opts.Type,
		Status:          domain.StatusDraft,
		CurrentStage:    domain.StagePreparation,
		Stages:          t.stageTemplate(opts.Type, nowStr),
		Fees:            domain.Fees{Amount: fee},
		Notes: []domain.Note{{
			ID:        uuid.New().String(),
			Author:    "system",
			Category:  domain.NoteSystem,
			Content:   "Permit created",
			CreatedAt: nowStr,
		}},
		CreatedAt: nowStr,
		UpdatedAt: nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Permit{}, err
	}
	defer tx.Rollback()
	if err := t.Repo.InsertPermitTx(ctx, tx, p); err != nil {
		return domain.Permit{}, err
	}
	if err := t.Events.Append(ctx, tx, "permit.created", "permit", p.ID, opts.ActorID, events.EventPayload{
		"type":   p.Type,
		"status": p.Status,
	}); err != nil {
		return domain.Permit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Permit{}, err
	}
	return p, nil
}

// stageTemplate builds the per-type pipeline: the universal sequence with a
// committee stage inserted before decision for configured types.
func (t Tracker) stageTemplate(appType, nowStr string) []domain.StageProgress {
	names := []string{
		domain.StagePreparation,
		domain.StageSubmission,
		domain.StageValidation,
		domain.StageConsultation,
		domain.StageAssessment,
	}
	if t.Config.RequiresCommittee(appType) {
		names = append(names, domain.StageCommittee)
	}
	names = append(names, domain.StageDecision)
	stages := make([]domain.StageProgress, 0, len(names))
	for i, name := range names {
		s := domain.StageProgress{
			Stage:         name,
			Status:        "not_started",
			EstimatedDays: t.Config.EstimatedDays(name),
		}
		if i == 0 {
			s.Status = "in_progress"
			start := nowStr
			s.StartDate = &start
		}
		stages = append(stages, s)
	}
	return stages
}

// UpdateStatusOptions are parameters for a status update.
type UpdateStatusOptions struct {
	ID      string
	Status  string
	Note    string
	ActorID string
	Force   bool
}

// UpdateStatus sets the permit status, derives key dates, advances the
// current stage per the status->stage mapping, and recomputes stage progress.
// The target decision date is recomputed every time validated fires.
func (t Tracker) UpdateStatus(ctx context.Context, opts UpdateStatusOptions) (domain.Permit, error) {
	if t.Config == nil {
		return domain.Permit{}, errors.New("config not loaded")
	}
	if !knownStatuses[opts.Status] {
		return domain.Permit{}, fmt.Errorf("unknown status %s", opts.Status)
	}
	p, err := t.Repo.GetPermit(ctx, opts.ID)
	if err != nil {
		return p, err
	}
	if err := ensureStatusTransition(p.Status, opts.Status, opts.Force); err != nil {
		return p, err
	}
	now := t.now().UTC()
	nowStr := now.Format(time.RFC3339)
	prev := p.Status
	p.Status = opts.Status

	switch opts.Status {
	case domain.StatusSubmitted:
		p.CurrentStage = domain.StageSubmission
		p.KeyDates.Submitted = &nowStr
		if p.ApplicationRef == "" {
			p.ApplicationRef = applicationRef(now, p.ID)
		}
	case domain.StatusValidated:
		p.CurrentStage = domain.StageValidation
		p.KeyDates.Validated = &nowStr
		target := now.AddDate(0, 0, t.Config.DecisionDays(p.Type)).Format(time.RFC3339)
		p.KeyDates.TargetDecision = &target
	case domain.StatusApproved, domain.StatusApprovedWithConditions, domain.StatusRefused:
		p.CurrentStage = domain.StageDecision
		p.KeyDates.DecisionDate = &nowStr
	}
	recomputeStages(&p, nowStr)
	p.UpdatedAt = nowStr

	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.UpdatePermitCoreTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := t.Repo.ReplaceStagesTx(ctx, tx, p.ID, p.Stages); err != nil {
		return p, err
	}
	if opts.Note != "" {
		n := domain.Note{
			ID:        uuid.New().String(),
			Author:    actorOrSystem(opts.ActorID),
			Category:  domain.NoteOfficerUpdate,
			Content:   opts.Note,
			CreatedAt: nowStr,
		}
		if err := t.Repo.InsertNoteTx(ctx, tx, p.ID, n); err != nil {
			return p, err
		}
		p.Notes = append(p.Notes, n)
	}
	if err := t.Events.Append(ctx, tx, "permit.status.updated", "permit", p.ID, opts.ActorID, events.EventPayload{
		"from_status": prev,
		"to_status":   p.Status,
		"stage":       p.CurrentStage,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// recomputeStages completes every stage strictly before the current one,
// marks the current stage in progress, and leaves later stages untouched.
// Completed stages are never reverted.
func recomputeStages(p *domain.Permit, nowStr string) {
	cur := domain.StageIndex(p.CurrentStage)
	for i := range p.Stages {
		s := &p.Stages[i]
		idx := domain.StageIndex(s.Stage)
		switch {
		case idx < cur:
			if s.Status != "completed" {
				s.Status = "completed"
				completed := nowStr
				s.CompletedDate = &completed
				if s.StartDate != nil {
					days := wholeDays(*s.StartDate, nowStr)
					s.ActualDays = &days
				}
			}
		case idx == cur:
			if s.Status != "completed" {
				s.Status = "in_progress"
			}
			if s.StartDate == nil {
				start := nowStr
				s.StartDate = &start
			}
		}
	}
}

// ConditionInput is a condition before id and status are assigned.
type ConditionInput struct {
	Type        string
	Description string
	Deadline    *string
}

// AddCondition appends a pending condition. Numbers are sequential; the
// authority does not guarantee uniqueness across re-issued decisions.
func (t Tracker) AddCondition(ctx context.Context, permitID string, in ConditionInput, actorID string) (domain.Permit, error) {
	if in.Description == "" {
		return domain.Permit{}, errors.New("description is required")
	}
	if in.Type == "" {
		in.Type = "ongoing"
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	c := domain.Condition{
		ID:          uuid.New().String(),
		Number:      len(p.Conditions) + 1,
		Type:        in.Type,
		Description: in.Description,
		Status:      "pending",
		Deadline:    in.Deadline,
		CreatedAt:   nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.InsertConditionTx(ctx, tx, p.ID, c); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.condition.added", "condition", c.ID, actorID, events.EventPayload{
		"permit_id": p.ID,
		"number":    c.Number,
		"type":      c.Type,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Conditions = append(p.Conditions, c)
	p.UpdatedAt = nowStr
	return p, nil
}

// UpdateConditionStatus transitions one condition. A submitted condition
// records its submission date; a discharge with a reference records it.
func (t Tracker) UpdateConditionStatus(ctx context.Context, permitID, conditionID, status, dischargeRef, actorID string) (domain.Permit, error) {
	switch status {
	case "pending", "submitted", "approved", "discharged":
	default:
		return domain.Permit{}, fmt.Errorf("unknown condition status %s", status)
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	idx := -1
	for i, c := range p.Conditions {
		if c.ID == conditionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, fmt.Errorf("condition %s: %w", conditionID, repo.ErrNotFound)
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	c := p.Conditions[idx]
	prev := c.Status
	c.Status = status
	if status == "submitted" && c.SubmittedDate == nil {
		c.SubmittedDate = &nowStr
	}
	if status == "discharged" {
		c.DischargedDate = &nowStr
		if dischargeRef != "" {
			c.DischargeRef = dischargeRef
		}
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.UpdateConditionTx(ctx, tx, c); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.condition.updated", "condition", c.ID, actorID, events.EventPayload{
		"permit_id":   p.ID,
		"from_status": prev,
		"to_status":   status,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Conditions[idx] = c
	p.UpdatedAt = nowStr
	return p, nil
}

// ConsulteeInput is a consultee response before identity assignment.
type ConsulteeInput struct {
	Name           string
	Type           string
	Status         string
	Recommendation string
}

// AddConsulteeResponse upserts the current response for a consultee. The
// consultee id is minted on first registration and kept across replacements.
func (t Tracker) AddConsulteeResponse(ctx context.Context, permitID string, in ConsulteeInput, actorID string) (domain.Permit, error) {
	if in.Name == "" {
		return domain.Permit{}, errors.New("consultee name is required")
	}
	if in.Type == "" {
		in.Type = "public"
	}
	if in.Status == "" {
		in.Status = "pending"
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	id, err := t.Repo.GetConsulteeID(ctx, p.ID, in.Name)
	if errors.Is(err, repo.ErrNotFound) {
		id = uuid.New().String()
	} else if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	c := domain.ConsulteeResponse{
		ID:             id,
		Name:           in.Name,
		Type:           in.Type,
		Status:         in.Status,
		Recommendation: in.Recommendation,
	}
	if in.Status == "received" {
		c.RespondedAt = &nowStr
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.UpsertConsulteeTx(ctx, tx, p.ID, c); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.consultee.recorded", "consultee", c.ID, actorID, events.EventPayload{
		"permit_id": p.ID,
		"name":      c.Name,
		"status":    c.Status,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	replaced := false
	for i := range p.Consultees {
		if p.Consultees[i].Name == c.Name {
			p.Consultees[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		p.Consultees = append(p.Consultees, c)
	}
	p.UpdatedAt = nowStr
	return p, nil
}

// AddNote appends to the note log.
func (t Tracker) AddNote(ctx context.Context, permitID, author, content, category string) (domain.Permit, error) {
	if content == "" {
		return domain.Permit{}, errors.New("content is required")
	}
	if category == "" {
		category = domain.NoteUser
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	n := domain.Note{
		ID:        uuid.New().String(),
		Author:    actorOrSystem(author),
		Category:  category,
		Content:   content,
		CreatedAt: nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.InsertNoteTx(ctx, tx, p.ID, n); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.note.added", "note", n.ID, author, events.EventPayload{
		"permit_id": p.ID,
		"category":  n.Category,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Notes = append(p.Notes, n)
	p.UpdatedAt = nowStr
	return p, nil
}

// AddDocument records an uploaded artifact awaiting approval.
func (t Tracker) AddDocument(ctx context.Context, permitID, name, category, actorID string) (domain.Permit, error) {
	if name == "" {
		return domain.Permit{}, errors.New("name is required")
	}
	if category == "" {
		category = "supporting"
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	d := domain.Document{
		ID:         uuid.New().String(),
		Name:       name,
		Category:   category,
		Status:     "pending",
		UploadedAt: nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.InsertDocumentTx(ctx, tx, p.ID, d); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.document.added", "document", d.ID, actorID, events.EventPayload{
		"permit_id": p.ID,
		"category":  d.Category,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Documents = append(p.Documents, d)
	p.UpdatedAt = nowStr
	return p, nil
}

// SetDocumentStatus approves or rejects a document.
func (t Tracker) SetDocumentStatus(ctx context.Context, permitID, docID, status, actorID string) (domain.Permit, error) {
	switch status {
	case "pending", "approved", "rejected":
	default:
		return domain.Permit{}, fmt.Errorf("unknown document status %s", status)
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	idx := -1
	for i, d := range p.Documents {
		if d.ID == docID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, fmt.Errorf("document %s: %w", docID, repo.ErrNotFound)
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.UpdateDocumentStatusTx(ctx, tx, docID, status); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.document.updated", "document", docID, actorID, events.EventPayload{
		"permit_id": p.ID,
		"status":    status,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Documents[idx].Status = status
	p.UpdatedAt = nowStr
	return p, nil
}

// AssignOfficer sets the caseworker and records a system note.
func (t Tracker) AssignOfficer(ctx context.Context, permitID, name, contact, actorID string) (domain.Permit, error) {
	if name == "" {
		return domain.Permit{}, errors.New("officer name is required")
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	p.Officer = &domain.Officer{Name: name, Contact: contact, AssignedAt: nowStr}
	p.UpdatedAt = nowStr
	n := domain.Note{
		ID:        uuid.New().String(),
		Author:    "system",
		Category:  domain.NoteSystem,
		Content:   "Case officer assigned: " + name,
		CreatedAt: nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.UpdatePermitCoreTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := t.Repo.InsertNoteTx(ctx, tx, p.ID, n); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.officer.assigned", "permit", p.ID, actorID, events.EventPayload{
		"officer": name,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Notes = append(p.Notes, n)
	return p, nil
}

// MarkFeePaid sets the paid flag and date.
func (t Tracker) MarkFeePaid(ctx context.Context, permitID, actorID string) (domain.Permit, error) {
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	p.Fees.Paid = true
	p.Fees.PaidAt = &nowStr
	p.UpdatedAt = nowStr
	n := domain.Note{
		ID:        uuid.New().String(),
		Author:    "system",
		Category:  domain.NoteSystem,
		Content:   fmt.Sprintf("Application fee paid (£%d)", p.Fees.Amount),
		CreatedAt: nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.UpdatePermitCoreTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := t.Repo.InsertNoteTx(ctx, tx, p.ID, n); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.fee.paid", "permit", p.ID, actorID, events.EventPayload{
		"amount": p.Fees.Amount,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Notes = append(p.Notes, n)
	return p, nil
}

// AddFeeItem appends an extra fee line item.
func (t Tracker) AddFeeItem(ctx context.Context, permitID, description string, amount int, actorID string) (domain.Permit, error) {
	if description == "" {
		return domain.Permit{}, errors.New("description is required")
	}
	p, err := t.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	nowStr := t.now().UTC().Format(time.RFC3339)
	it := domain.FeeItem{
		ID:          uuid.New().String(),
		Description: description,
		Amount:      amount,
		AddedAt:     nowStr,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := t.Repo.InsertFeeItemTx(ctx, tx, p.ID, it); err != nil {
		return p, err
	}
	if err := t.Repo.TouchPermitTx(ctx, tx, p.ID, nowStr); err != nil {
		return p, err
	}
	if err := t.Events.Append(ctx, tx, "permit.fee.item.added", "permit", p.ID, actorID, events.EventPayload{
		"description": description,
		"amount":      amount,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Fees.Items = append(p.Fees.Items, it)
	p.UpdatedAt = nowStr
	return p, nil
}

// Get returns the full aggregate.
func (t Tracker) Get(ctx context.Context, id string) (domain.Permit, error) {
	return t.Repo.GetPermit(ctx, id)
}

// UserPermits lists a user's permits, most recently touched first.
func (t Tracker) UserPermits(ctx context.Context, ownerID string) ([]domain.Permit, error) {
	return t.Repo.ListPermits(ctx, repo.PermitFilters{OwnerID: ownerID})
}

// Summary aggregates a user's permits: counts, decision maths, and the
// merged upcoming-deadline feed.
func (t Tracker) Summary(ctx context.Context, ownerID string) (domain.Summary, error) {
	permits, err := t.UserPermits(ctx, ownerID)
	if err != nil {
		return domain.Summary{}, err
	}
	s := domain.Summary{
		StatusCounts:      map[string]int{},
		TypeCounts:        map[string]int{},
		UpcomingDeadlines: []domain.Deadline{},
	}
	now := t.now().UTC()
	windowEnd := now.AddDate(0, 0, t.Config.Deadlines.WindowDays)
	var totalDays, decidedWithDates, decided, succeeded int
	for _, p := range permits {
		s.Total++
		s.StatusCounts[p.Status]++
		s.TypeCounts[p.Type]++
		if p.Status == domain.StatusPendingDecision {
			s.PendingDecision++
		}
		if isDecided(p.Status) {
			decided++
			if isSuccessful(p.Status) {
				succeeded++
			}
			if p.KeyDates.Submitted != nil && p.KeyDates.DecisionDate != nil {
				totalDays += wholeDays(*p.KeyDates.Submitted, *p.KeyDates.DecisionDate)
				decidedWithDates++
			}
		}
		s.UpcomingDeadlines = append(s.UpcomingDeadlines, permitDeadlines(p, now, windowEnd)...)
	}
	if decidedWithDates > 0 {
		s.AvgProcessingDays = totalDays / decidedWithDates
	}
	if decided > 0 {
		s.SuccessRate = int(math.Round(float64(succeeded) / float64(decided) * 100))
	}
	sort.SliceStable(s.UpcomingDeadlines, func(i, j int) bool {
		return s.UpcomingDeadlines[i].Date < s.UpcomingDeadlines[j].Date
	})
	if max := t.Config.Deadlines.MaxUpcoming; len(s.UpcomingDeadlines) > max {
		s.UpcomingDeadlines = s.UpcomingDeadlines[:max]
	}
	return s, nil
}

// permitDeadlines collects the three deadline sources for one permit:
// pending target decisions, live consultation end dates, and pending
// condition deadlines.
func permitDeadlines(p domain.Permit, now, windowEnd time.Time) []domain.Deadline {
	var out []domain.Deadline
	if p.Status == domain.StatusPendingDecision && p.KeyDates.TargetDecision != nil {
		if d, ok := parseWithin(*p.KeyDates.TargetDecision, now, windowEnd); ok {
			out = append(out, domain.Deadline{
				PermitID:       p.ID,
				ApplicationRef: p.ApplicationRef,
				Kind:           "target_decision",
				Description:    "Target decision date",
				Date:           d,
			})
		}
	}
	if p.KeyDates.ConsultationEnd != nil {
		if d, ok := parseWithin(*p.KeyDates.ConsultationEnd, now, windowEnd); ok {
			out = append(out, domain.Deadline{
				PermitID:       p.ID,
				ApplicationRef: p.ApplicationRef,
				Kind:           "consultation_end",
				Description:    "Consultation period closes",
				Date:           d,
			})
		}
	}
	for _, c := range p.Conditions {
		if c.Status != "pending" || c.Deadline == nil {
			continue
		}
		if d, ok := parseWithin(*c.Deadline, now, windowEnd); ok {
			out = append(out, domain.Deadline{
				PermitID:       p.ID,
				ApplicationRef: p.ApplicationRef,
				Kind:           "condition",
				Description:    fmt.Sprintf("Condition %d: %s", c.Number, c.Description),
				Date:           d,
			})
		}
	}
	return out
}

// parseWithin returns the date normalised to RFC3339 when it falls inside
// [now, windowEnd].
func parseWithin(raw string, now, windowEnd time.Time) (string, bool) {
	d, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", false
	}
	if d.Before(now) || d.After(windowEnd) {
		return "", false
	}
	return d.UTC().Format(time.RFC3339), true
}

// Timeline merges key-date milestones, consultee responses, and the note log
// into one chronologically ascending projection.
func (t Tracker) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	p, err := t.Repo.GetPermit(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []domain.TimelineEvent
	milestone := func(date *string, desc string) {
		if date != nil {
			out = append(out, domain.TimelineEvent{Date: *date, Description: desc, Category: "milestone"})
		}
	}
	milestone(p.KeyDates.Submitted, "Application submitted")
	milestone(p.KeyDates.Validated, "Application validated")
	milestone(p.KeyDates.TargetDecision, "Target decision date")
	milestone(p.KeyDates.ConsultationStart, "Consultation period opened")
	milestone(p.KeyDates.ConsultationEnd, "Consultation period closes")
	milestone(p.KeyDates.CommitteeDate, "Planning committee")
	milestone(p.KeyDates.DecisionDate, "Decision issued")
	milestone(p.KeyDates.ConditionsDeadline, "Conditions discharge deadline")
	milestone(p.KeyDates.Expiry, "Permission expires")
	for _, c := range p.Consultees {
		if c.RespondedAt == nil {
			continue
		}
		desc := "Response received from " + c.Name
		if c.Recommendation != "" {
			desc = fmt.Sprintf("Response from %s: %s", c.Name, c.Recommendation)
		}
		out = append(out, domain.TimelineEvent{Date: *c.RespondedAt, Description: desc, Category: "consultation"})
	}
	for _, n := range p.Notes {
		out = append(out, domain.TimelineEvent{Date: n.CreatedAt, Description: n.Content, Category: n.Category})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// AreaStatistics looks up the canned benchmark row for a postcode prefix.
// The prefix is the first postcode token ("NW3 2AB" -> "NW3").
func (t Tracker) AreaStatistics(postcode string) domain.AreaStatistics {
	prefix := strings.ToUpper(strings.TrimSpace(postcode))
	if fields := strings.Fields(prefix); len(fields) > 0 {
		prefix = fields[0]
	}
	row := t.Config.AreaFor(prefix)
	return domain.AreaStatistics{
		Prefix:             prefix,
		AvgProcessingDays:  row.AvgProcessingDays,
		SuccessRate:        row.SuccessRate,
		CommonConditions:   row.CommonConditions,
		MostActiveOfficers: row.MostActiveOfficers,
	}
}

// --- helpers ---

func applicationRef(now time.Time, id string) string {
	short := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("PL/%d/%s", now.Year(), short)
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

func wholeDays(start, end string) int {
	s, err1 := time.Parse(time.RFC3339, start)
	e, err2 := time.Parse(time.RFC3339, end)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(e.Sub(s).Hours() / 24)
}
