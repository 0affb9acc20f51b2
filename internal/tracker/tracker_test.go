package tracker_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"permitline/internal/config"
	"permitline/internal/db"
	"permitline/internal/domain"
	"permitline/internal/migrate"
	"permitline/internal/repo"
	"permitline/internal/tracker"
)

var baseTime = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Tracker tracker.Tracker
	Ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	tr := tracker.New(conn, cfg)
	tr.Now = func() time.Time { return baseTime }
	return &testEnv{Tracker: tr, Ctx: context.Background()}
}

func (env *testEnv) setNow(now time.Time) {
	env.Tracker.Now = func() time.Time { return now }
}

func (env *testEnv) create(t *testing.T, appType, owner string) domain.Permit {
	t.Helper()
	p, err := env.Tracker.Create(env.Ctx, tracker.CreateOptions{
		OwnerID:         owner,
		PropertyAddress: "12 Flask Walk",
		Postcode:        "NW3 1HE",
		Type:            appType,
		ActorID:         owner,
	})
	if err != nil {
		t.Fatalf("create permit: %v", err)
	}
	return p
}

func (env *testEnv) setStatus(t *testing.T, id, status string) domain.Permit {
	t.Helper()
	p, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{ID: id, Status: status, ActorID: "tester"})
	if err != nil {
		t.Fatalf("set status %s: %v", status, err)
	}
	return p
}

func stageByName(p domain.Permit, name string) *domain.StageProgress {
	for i := range p.Stages {
		if p.Stages[i].Stage == name {
			return &p.Stages[i]
		}
	}
	return nil
}

func TestCreatePermitDefaults(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	if p.Status != "draft" || p.CurrentStage != "preparation" {
		t.Fatalf("expected draft/preparation, got %s/%s", p.Status, p.CurrentStage)
	}
	if p.Fees.Amount != 258 {
		t.Fatalf("householder fee: got %d", p.Fees.Amount)
	}
	if len(p.Stages) != 6 {
		t.Fatalf("expected 6 stages without committee, got %d", len(p.Stages))
	}
	first := p.Stages[0]
	if first.Stage != "preparation" || first.Status != "in_progress" || first.StartDate == nil {
		t.Fatalf("first stage not started: %+v", first)
	}
	for _, s := range p.Stages[1:] {
		if s.Status != "not_started" {
			t.Fatalf("stage %s should be not_started, got %s", s.Stage, s.Status)
		}
	}
	if len(p.Notes) != 1 || p.Notes[0].Category != "system" {
		t.Fatalf("expected one system note, got %+v", p.Notes)
	}
	if p.ApplicationRef != "" {
		t.Fatalf("reference minted before submission: %s", p.ApplicationRef)
	}
	got, err := env.Tracker.Get(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fees.Amount != 258 || len(got.Stages) != 6 || len(got.Notes) != 1 {
		t.Fatalf("aggregate did not round-trip: %+v", got)
	}
}

func TestCommitteeStageForFullPlanning(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "full_planning", "alice")
	if p.Fees.Amount != 578 {
		t.Fatalf("full planning fee: got %d", p.Fees.Amount)
	}
	if len(p.Stages) != 7 {
		t.Fatalf("expected 7 stages with committee, got %d", len(p.Stages))
	}
	if s := stageByName(p, "committee"); s == nil {
		t.Fatalf("committee stage missing")
	}
	if p.Stages[len(p.Stages)-1].Stage != "decision" {
		t.Fatalf("decision must be last stage")
	}
}

func TestCreateUnknownTypeRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Tracker.Create(env.Ctx, tracker.CreateOptions{
		OwnerID:         "alice",
		PropertyAddress: "1 High St",
		Postcode:        "NW6 4AA",
		Type:            "garden_gnome",
		ActorID:         "alice",
	})
	if err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")

	p = env.setStatus(t, p.ID, "submitted")
	if p.KeyDates.Submitted == nil {
		t.Fatalf("submitted date not set")
	}
	if !strings.HasPrefix(p.ApplicationRef, "PL/2025/") {
		t.Fatalf("unexpected application ref %q", p.ApplicationRef)
	}
	if p.CurrentStage != "submission" {
		t.Fatalf("stage after submit: %s", p.CurrentStage)
	}
	if s := stageByName(p, "preparation"); s.Status != "completed" || s.CompletedDate == nil {
		t.Fatalf("preparation should complete on submission: %+v", s)
	}

	p = env.setStatus(t, p.ID, "validated")
	if p.KeyDates.Validated == nil || p.KeyDates.TargetDecision == nil {
		t.Fatalf("validation key dates not set")
	}
	wantTarget := baseTime.AddDate(0, 0, 56).Format(time.RFC3339)
	if *p.KeyDates.TargetDecision != wantTarget {
		t.Fatalf("householder target decision: got %s want %s", *p.KeyDates.TargetDecision, wantTarget)
	}

	p = env.setStatus(t, p.ID, "approved")
	if p.KeyDates.DecisionDate == nil {
		t.Fatalf("decision date not set")
	}
	if p.CurrentStage != "decision" {
		t.Fatalf("stage after decision: %s", p.CurrentStage)
	}
	for _, name := range []string{"submission", "validation", "consultation", "assessment"} {
		if s := stageByName(p, name); s.Status != "completed" {
			t.Fatalf("stage %s should be completed, got %s", name, s.Status)
		}
	}
	if s := stageByName(p, "decision"); s.Status != "in_progress" || s.StartDate == nil {
		t.Fatalf("decision stage should be in progress: %+v", s)
	}
}

func TestTargetDecisionNonHouseholder(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "full_planning", "alice")
	env.setStatus(t, p.ID, "submitted")
	p = env.setStatus(t, p.ID, "validated")
	want := baseTime.AddDate(0, 0, 91).Format(time.RFC3339)
	if *p.KeyDates.TargetDecision != want {
		t.Fatalf("full planning target decision: got %s want %s", *p.KeyDates.TargetDecision, want)
	}
}

func TestTargetDecisionRecomputedOnRevalidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "submitted")
	env.setStatus(t, p.ID, "validated")

	later := baseTime.AddDate(0, 0, 10)
	env.setNow(later)
	p, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{ID: p.ID, Status: "validated", ActorID: "tester", Force: true})
	if err != nil {
		t.Fatalf("re-validate: %v", err)
	}
	want := later.AddDate(0, 0, 56).Format(time.RFC3339)
	if *p.KeyDates.TargetDecision != want {
		t.Fatalf("target decision not recomputed: got %s want %s", *p.KeyDates.TargetDecision, want)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	_, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{ID: p.ID, Status: "approved", ActorID: "tester"})
	if !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// force bypasses the table
	p2, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{ID: p.ID, Status: "approved", ActorID: "tester", Force: true})
	if err != nil || p2.Status != "approved" {
		t.Fatalf("forced transition failed: %v", err)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "withdrawn")
	_, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{ID: p.ID, Status: "submitted", ActorID: "tester"})
	if !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Fatalf("withdrawn should be terminal, got %v", err)
	}
}

func TestRefusalAllowsAppeal(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "submitted")
	env.setStatus(t, p.ID, "validated")
	env.setStatus(t, p.ID, "refused")
	p = env.setStatus(t, p.ID, "appealed")
	p = env.setStatus(t, p.ID, "approved")
	if p.Status != "approved" {
		t.Fatalf("appeal outcome: %s", p.Status)
	}
}

func TestCompletedStagesNeverRevert(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "submitted")
	p = env.setStatus(t, p.ID, "validated")
	completedAt := *stageByName(p, "submission").CompletedDate

	// a forced step back must not un-complete earlier stages
	env.setNow(baseTime.AddDate(0, 0, 3))
	p, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{ID: p.ID, Status: "submitted", ActorID: "tester", Force: true})
	if err != nil {
		t.Fatalf("forced step back: %v", err)
	}
	for _, name := range []string{"preparation", "submission"} {
		s := stageByName(p, name)
		if s.Status != "completed" || s.CompletedDate == nil {
			t.Fatalf("stage %s lost completion on step back: %+v", name, s)
		}
	}
	if got := *stageByName(p, "submission").CompletedDate; got != completedAt {
		t.Fatalf("submission completed date rewritten: %s -> %s", completedAt, got)
	}
}

func TestStatusNoteRecorded(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	p, err := env.Tracker.UpdateStatus(env.Ctx, tracker.UpdateStatusOptions{
		ID: p.ID, Status: "submitted", Note: "Posted via portal", ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	last := p.Notes[len(p.Notes)-1]
	if last.Content != "Posted via portal" || last.Category != "officer_update" || last.Author != "alice" {
		t.Fatalf("unexpected note: %+v", last)
	}
}

func TestConditionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "submitted")
	env.setStatus(t, p.ID, "validated")
	env.setStatus(t, p.ID, "approved_with_conditions")

	p, err := env.Tracker.AddCondition(env.Ctx, p.ID, tracker.ConditionInput{
		Type:        "pre_commencement",
		Description: "Submit materials schedule",
	}, "officer-1")
	if err != nil {
		t.Fatalf("add condition: %v", err)
	}
	p, err = env.Tracker.AddCondition(env.Ctx, p.ID, tracker.ConditionInput{
		Description: "Landscaping plan",
	}, "officer-1")
	if err != nil {
		t.Fatalf("add second condition: %v", err)
	}
	if len(p.Conditions) != 2 || p.Conditions[0].Number != 1 || p.Conditions[1].Number != 2 {
		t.Fatalf("condition numbering wrong: %+v", p.Conditions)
	}
	if p.Conditions[1].Type != "ongoing" {
		t.Fatalf("default condition type: %s", p.Conditions[1].Type)
	}

	cond := p.Conditions[0]
	p, err = env.Tracker.UpdateConditionStatus(env.Ctx, p.ID, cond.ID, "submitted", "", "alice")
	if err != nil {
		t.Fatalf("submit condition: %v", err)
	}
	if p.Conditions[0].SubmittedDate == nil {
		t.Fatalf("submitted date not recorded")
	}
	p, err = env.Tracker.UpdateConditionStatus(env.Ctx, p.ID, cond.ID, "discharged", "DIS/2025/001", "officer-1")
	if err != nil {
		t.Fatalf("discharge condition: %v", err)
	}
	got := p.Conditions[0]
	if got.Status != "discharged" || got.DischargedDate == nil || got.DischargeRef != "DIS/2025/001" {
		t.Fatalf("discharge not recorded: %+v", got)
	}

	_, err = env.Tracker.UpdateConditionStatus(env.Ctx, p.ID, "missing", "approved", "", "alice")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown condition, got %v", err)
	}
}

func TestConsulteeStableIdentity(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "full_planning", "alice")
	p, err := env.Tracker.AddConsulteeResponse(env.Ctx, p.ID, tracker.ConsulteeInput{
		Name: "Highways Authority",
		Type: "statutory",
	}, "officer-1")
	if err != nil {
		t.Fatalf("register consultee: %v", err)
	}
	firstID := p.Consultees[0].ID
	if p.Consultees[0].Status != "pending" || p.Consultees[0].RespondedAt != nil {
		t.Fatalf("initial consultee state: %+v", p.Consultees[0])
	}

	p, err = env.Tracker.AddConsulteeResponse(env.Ctx, p.ID, tracker.ConsulteeInput{
		Name:           "Highways Authority",
		Type:           "statutory",
		Status:         "received",
		Recommendation: "support",
	}, "officer-1")
	if err != nil {
		t.Fatalf("record response: %v", err)
	}
	if len(p.Consultees) != 1 {
		t.Fatalf("expected one consultee after replacement, got %d", len(p.Consultees))
	}
	got := p.Consultees[0]
	if got.ID != firstID {
		t.Fatalf("consultee id changed on replacement: %s -> %s", firstID, got.ID)
	}
	if got.Status != "received" || got.RespondedAt == nil || got.Recommendation != "support" {
		t.Fatalf("response not recorded: %+v", got)
	}
}

func TestDocumentsAndNotes(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")

	p, err := env.Tracker.AddDocument(env.Ctx, p.ID, "site-plan.pdf", "drawing", "alice")
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	doc := p.Documents[0]
	if doc.Status != "pending" {
		t.Fatalf("new document status: %s", doc.Status)
	}
	p, err = env.Tracker.SetDocumentStatus(env.Ctx, p.ID, doc.ID, "approved", "officer-1")
	if err != nil || p.Documents[0].Status != "approved" {
		t.Fatalf("approve document: %v", err)
	}
	_, err = env.Tracker.SetDocumentStatus(env.Ctx, p.ID, "missing", "approved", "officer-1")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown document, got %v", err)
	}

	p, err = env.Tracker.AddNote(env.Ctx, p.ID, "alice", "Neighbour objects to roofline", "")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	last := p.Notes[len(p.Notes)-1]
	if last.Category != "user_note" || last.Author != "alice" {
		t.Fatalf("note defaults: %+v", last)
	}
}

func TestOfficerAndFees(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")

	p, err := env.Tracker.AssignOfficer(env.Ctx, p.ID, "S. Hargreaves", "planning@camden.gov.uk", "admin")
	if err != nil {
		t.Fatalf("assign officer: %v", err)
	}
	if p.Officer == nil || p.Officer.Name != "S. Hargreaves" {
		t.Fatalf("officer not set: %+v", p.Officer)
	}
	last := p.Notes[len(p.Notes)-1]
	if last.Category != "system" || !strings.Contains(last.Content, "S. Hargreaves") {
		t.Fatalf("assignment note missing: %+v", last)
	}

	p, err = env.Tracker.MarkFeePaid(env.Ctx, p.ID, "alice")
	if err != nil {
		t.Fatalf("pay fee: %v", err)
	}
	if !p.Fees.Paid || p.Fees.PaidAt == nil {
		t.Fatalf("fee payment not recorded: %+v", p.Fees)
	}

	p, err = env.Tracker.AddFeeItem(env.Ctx, p.ID, "Pre-application advice", 120, "alice")
	if err != nil {
		t.Fatalf("add fee item: %v", err)
	}
	if len(p.Fees.Items) != 1 || p.Fees.Items[0].Amount != 120 {
		t.Fatalf("fee items: %+v", p.Fees.Items)
	}
}

func TestSummaryMaths(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.create(t, "householder", "alice")
	p2 := env.create(t, "full_planning", "alice")
	p3 := env.create(t, "householder", "alice")
	env.create(t, "householder", "bob") // other owner, excluded

	for _, p := range []domain.Permit{p1, p2, p3} {
		env.setStatus(t, p.ID, "submitted")
		env.setStatus(t, p.ID, "validated")
	}
	env.setStatus(t, p3.ID, "pending_decision")

	env.setNow(baseTime.AddDate(0, 0, 30))
	env.setStatus(t, p1.ID, "approved")
	env.setStatus(t, p2.ID, "refused")

	s, err := env.Tracker.Summary(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Total != 3 {
		t.Fatalf("total: %d", s.Total)
	}
	if s.StatusCounts["approved"] != 1 || s.StatusCounts["refused"] != 1 || s.StatusCounts["pending_decision"] != 1 {
		t.Fatalf("status counts: %+v", s.StatusCounts)
	}
	if s.TypeCounts["householder"] != 2 || s.TypeCounts["full_planning"] != 1 {
		t.Fatalf("type counts: %+v", s.TypeCounts)
	}
	if s.PendingDecision != 1 {
		t.Fatalf("pending decision: %d", s.PendingDecision)
	}
	if s.AvgProcessingDays != 30 {
		t.Fatalf("avg processing days: %d", s.AvgProcessingDays)
	}
	if s.SuccessRate != 50 {
		t.Fatalf("success rate: %d", s.SuccessRate)
	}
}

func TestSummaryDeadlineWindowAndCap(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "submitted")
	env.setStatus(t, p.ID, "validated")
	env.setStatus(t, p.ID, "approved_with_conditions")

	addWithDeadline := func(desc string, due time.Time) {
		t.Helper()
		d := due.Format(time.RFC3339)
		if _, err := env.Tracker.AddCondition(env.Ctx, p.ID, tracker.ConditionInput{
			Description: desc,
			Deadline:    &d,
		}, "officer-1"); err != nil {
			t.Fatalf("add condition: %v", err)
		}
	}
	// 12 inside the 14-day window, one outside, one in the past
	for i := 1; i <= 12; i++ {
		addWithDeadline("inside", baseTime.AddDate(0, 0, 13))
	}
	addWithDeadline("outside", baseTime.AddDate(0, 0, 30))
	addWithDeadline("past", baseTime.AddDate(0, 0, -1))

	s, err := env.Tracker.Summary(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(s.UpcomingDeadlines) != 10 {
		t.Fatalf("deadline cap: got %d", len(s.UpcomingDeadlines))
	}
	for _, d := range s.UpcomingDeadlines {
		if d.Kind != "condition" {
			t.Fatalf("unexpected deadline kind %s", d.Kind)
		}
		if strings.Contains(d.Description, "outside") || strings.Contains(d.Description, "past") {
			t.Fatalf("deadline outside window included: %+v", d)
		}
	}
}

func TestSummaryTargetDecisionDeadlines(t *testing.T) {
	env := newTestEnv(t)
	// 20 applications awaiting decision, target dates an hour apart
	for i := 0; i < 20; i++ {
		p := env.create(t, "householder", "alice")
		env.setStatus(t, p.ID, "submitted")
		env.setNow(baseTime.Add(time.Duration(i) * time.Hour))
		env.setStatus(t, p.ID, "validated")
		env.setStatus(t, p.ID, "pending_decision")
	}

	// six days before the earliest target, so every target is in the window
	env.setNow(baseTime.AddDate(0, 0, 50))
	s, err := env.Tracker.Summary(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(s.UpcomingDeadlines) != 10 {
		t.Fatalf("deadline cap: got %d", len(s.UpcomingDeadlines))
	}
	for i, d := range s.UpcomingDeadlines {
		if d.Kind != "target_decision" {
			t.Fatalf("unexpected deadline kind %s", d.Kind)
		}
		if i > 0 && d.Date < s.UpcomingDeadlines[i-1].Date {
			t.Fatalf("deadlines out of order at %d: %s < %s", i, d.Date, s.UpcomingDeadlines[i-1].Date)
		}
	}
	first := baseTime.AddDate(0, 0, 56).Format(time.RFC3339)
	if s.UpcomingDeadlines[0].Date != first {
		t.Fatalf("earliest target decision: got %s want %s", s.UpcomingDeadlines[0].Date, first)
	}
	last := baseTime.Add(9 * time.Hour).AddDate(0, 0, 56).Format(time.RFC3339)
	if s.UpcomingDeadlines[9].Date != last {
		t.Fatalf("tenth target decision: got %s want %s", s.UpcomingDeadlines[9].Date, last)
	}
}

func TestTimelineChronology(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "householder", "alice")
	env.setStatus(t, p.ID, "submitted")

	env.setNow(baseTime.AddDate(0, 0, 5))
	env.setStatus(t, p.ID, "validated")

	env.setNow(baseTime.AddDate(0, 0, 8))
	if _, err := env.Tracker.AddConsulteeResponse(env.Ctx, p.ID, tracker.ConsulteeInput{
		Name:           "Thames Water",
		Status:         "received",
		Recommendation: "support",
	}, "officer-1"); err != nil {
		t.Fatalf("consultee: %v", err)
	}

	env.setNow(baseTime.AddDate(0, 0, 12))
	if _, err := env.Tracker.AddNote(env.Ctx, p.ID, "alice", "Chased the case officer", ""); err != nil {
		t.Fatalf("note: %v", err)
	}

	items, err := env.Tracker.Timeline(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(items) < 5 {
		t.Fatalf("expected merged timeline, got %d entries", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Date < items[i-1].Date {
			t.Fatalf("timeline out of order at %d: %s < %s", i, items[i].Date, items[i-1].Date)
		}
	}
	var sawSubmission, sawConsultee, sawNote bool
	for _, e := range items {
		switch {
		case e.Description == "Application submitted" && e.Category == "milestone":
			sawSubmission = true
		case strings.Contains(e.Description, "Thames Water") && e.Category == "consultation":
			sawConsultee = true
		case e.Description == "Chased the case officer" && e.Category == "user_note":
			sawNote = true
		}
	}
	if !sawSubmission || !sawConsultee || !sawNote {
		t.Fatalf("timeline missing entries: submission=%v consultee=%v note=%v", sawSubmission, sawConsultee, sawNote)
	}
}

func TestAreaStatisticsLookup(t *testing.T) {
	env := newTestEnv(t)
	got := env.Tracker.AreaStatistics("nw3 2ab")
	if got.Prefix != "NW3" {
		t.Fatalf("prefix normalisation: %s", got.Prefix)
	}
	want := env.Tracker.Config.AreaFor("NW3")
	if got.SuccessRate != want.SuccessRate || got.AvgProcessingDays != want.AvgProcessingDays {
		t.Fatalf("NW3 row mismatch: %+v vs %+v", got, want)
	}

	fallback := env.Tracker.AreaStatistics("ZZ9 9ZZ")
	def := env.Tracker.Config.Areas.Default
	if fallback.SuccessRate != def.SuccessRate || fallback.AvgProcessingDays != def.AvgProcessingDays {
		t.Fatalf("default row mismatch: %+v", fallback)
	}
}

func TestGetNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Tracker.Get(env.Ctx, "does-not-exist")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserPermitsScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "householder", "alice")
	env.create(t, "tree_works", "alice")
	env.create(t, "householder", "bob")

	items, err := env.Tracker.UserPermits(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("user permits: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 permits for alice, got %d", len(items))
	}
	for _, p := range items {
		if p.OwnerID != "alice" {
			t.Fatalf("foreign permit in listing: %+v", p)
		}
	}
}
