package domain

// Application types recognised by the tracker. Each carries a flat statutory
// fee configured in permitline.yml.
const (
	TypeFullPlanning        = "full_planning"
	TypeHouseholder         = "householder"
	TypeListedBuilding      = "listed_building"
	TypeConservationArea    = "conservation_area"
	TypePriorApproval       = "prior_approval"
	TypeLawfulDevelopment   = "lawful_development"
	TypeAdvertisement       = "advertisement"
	TypeTreeWorks           = "tree_works"
	TypeDischargeConditions = "discharge_conditions"
)

// Permit statuses.
const (
	StatusDraft                  = "draft"
	StatusSubmitted              = "submitted"
	StatusValidated              = "validated"
	StatusPendingDecision        = "pending_decision"
	StatusApproved               = "approved"
	StatusApprovedWithConditions = "approved_with_conditions"
	StatusRefused                = "refused"
	StatusWithdrawn              = "withdrawn"
	StatusAppealed               = "appealed"
)

// Processing stages.
const (
	StagePreparation         = "preparation"
	StageSubmission          = "submission"
	StageValidation          = "validation"
	StageConsultation        = "consultation"
	StageAssessment          = "assessment"
	StageCommittee           = "committee"
	StageDecision            = "decision"
	StageConditionsDischarge = "conditions_discharge"
	StageCompleted           = "completed"
)

// StageOrder is the canonical stage ordering used when completing earlier
// stages after a status-driven advance.
var StageOrder = []string{
	StagePreparation,
	StageSubmission,
	StageValidation,
	StageConsultation,
	StageAssessment,
	StageCommittee,
	StageDecision,
	StageConditionsDischarge,
	StageCompleted,
}

// StageIndex returns the canonical position of a stage, or -1.
func StageIndex(stage string) int {
	for i, s := range StageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

type Permit struct {
	ID              string              `json:"id"`
	OwnerID         string              `json:"owner_id"`
	ApplicationRef  string              `json:"application_ref,omitempty"`
	CouncilRef      string              `json:"council_ref,omitempty"`
	PropertyAddress string              `json:"property_address"`
	Postcode        string              `json:"postcode"`
	Type            string              `json:"type" enum:"full_planning,householder,listed_building,conservation_area,prior_approval,lawful_development,advertisement,tree_works,discharge_conditions"`
	Status          string              `json:"status" enum:"draft,submitted,validated,pending_decision,approved,approved_with_conditions,refused,withdrawn,appealed"`
	CurrentStage    string              `json:"current_stage"`
	Stages          []StageProgress     `json:"stages"`
	KeyDates        KeyDates            `json:"key_dates"`
	Officer         *Officer            `json:"officer,omitempty"`
	Consultees      []ConsulteeResponse `json:"consultees,omitempty"`
	Conditions      []Condition         `json:"conditions,omitempty"`
	Documents       []Document          `json:"documents,omitempty"`
	Fees            Fees                `json:"fees"`
	Notes           []Note              `json:"notes,omitempty"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
	UpdatedAt       string              `json:"updated_at" format:"date-time"`
}

// StageProgress is one entry in a permit's ordered stage pipeline.
type StageProgress struct {
	Stage         string  `json:"stage"`
	Status        string  `json:"status" enum:"not_started,in_progress,completed,skipped"`
	StartDate     *string `json:"start_date,omitempty" format:"date-time"`
	CompletedDate *string `json:"completed_date,omitempty" format:"date-time"`
	EstimatedDays int     `json:"estimated_days"`
	ActualDays    *int    `json:"actual_days,omitempty"`
}

// KeyDates is the sparse set of milestone timestamps derived from status
// transitions. TargetDecision is derived from Validated plus the statutory
// period and is never set independently.
type KeyDates struct {
	Submitted          *string `json:"submitted,omitempty" format:"date-time"`
	Validated          *string `json:"validated,omitempty" format:"date-time"`
	TargetDecision     *string `json:"target_decision,omitempty" format:"date-time"`
	ConsultationStart  *string `json:"consultation_start,omitempty" format:"date-time"`
	ConsultationEnd    *string `json:"consultation_end,omitempty" format:"date-time"`
	CommitteeDate      *string `json:"committee_date,omitempty" format:"date-time"`
	DecisionDate       *string `json:"decision_date,omitempty" format:"date-time"`
	ConditionsDeadline *string `json:"conditions_deadline,omitempty" format:"date-time"`
	Expiry             *string `json:"expiry,omitempty" format:"date-time"`
}

type Officer struct {
	Name       string `json:"name"`
	Contact    string `json:"contact,omitempty"`
	AssignedAt string `json:"assigned_at" format:"date-time"`
}

// ConsulteeResponse holds the current response for a consultee. The id is
// minted when a consultee name is first recorded and survives later upserts.
type ConsulteeResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type" enum:"statutory,internal,neighbor,public"`
	Status         string  `json:"status" enum:"pending,received,no_response"`
	Recommendation string  `json:"recommendation,omitempty" enum:"support,object,neutral"`
	RespondedAt    *string `json:"responded_at,omitempty" format:"date-time"`
}

type Condition struct {
	ID             string  `json:"id"`
	Number         int     `json:"number"`
	Type           string  `json:"type" enum:"pre_commencement,pre_occupation,ongoing,informative"`
	Description    string  `json:"description"`
	Status         string  `json:"status" enum:"pending,submitted,approved,discharged"`
	Deadline       *string `json:"deadline,omitempty" format:"date-time"`
	SubmittedDate  *string `json:"submitted_date,omitempty" format:"date-time"`
	DischargedDate *string `json:"discharged_date,omitempty" format:"date-time"`
	DischargeRef   string  `json:"discharge_ref,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Document struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Status     string `json:"status" enum:"pending,approved,rejected"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type Fees struct {
	Amount int       `json:"amount"`
	Paid   bool      `json:"paid"`
	PaidAt *string   `json:"paid_at,omitempty" format:"date-time"`
	Items  []FeeItem `json:"items,omitempty"`
}

type FeeItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      int    `json:"amount"`
	AddedAt     string `json:"added_at" format:"date-time"`
}

// Note categories.
const (
	NoteSystem        = "system"
	NoteOfficerUpdate = "officer_update"
	NoteUser          = "user_note"
)

type Note struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Category  string `json:"category" enum:"system,officer_update,user_note"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Deadline is one entry in the upcoming-deadline feed of a summary.
type Deadline struct {
	PermitID       string `json:"permit_id"`
	ApplicationRef string `json:"application_ref,omitempty"`
	Kind           string `json:"kind" enum:"target_decision,consultation_end,condition"`
	Description    string `json:"description"`
	Date           string `json:"date" format:"date-time"`
}

// Summary aggregates a user's permits.
type Summary struct {
	Total             int            `json:"total"`
	StatusCounts      map[string]int `json:"status_counts"`
	TypeCounts        map[string]int `json:"type_counts"`
	AvgProcessingDays int            `json:"avg_processing_days"`
	SuccessRate       int            `json:"success_rate"`
	PendingDecision   int            `json:"pending_decision"`
	UpcomingDeadlines []Deadline     `json:"upcoming_deadlines"`
}

// TimelineEvent is one row of a permit's chronological projection.
type TimelineEvent struct {
	Date        string `json:"date" format:"date-time"`
	Description string `json:"description"`
	Category    string `json:"category" enum:"milestone,consultation,system,officer_update,user_note"`
}

// AreaStatistics is a canned borough-level benchmark row.
type AreaStatistics struct {
	Prefix             string   `json:"prefix"`
	AvgProcessingDays  int      `json:"avg_processing_days"`
	SuccessRate        int      `json:"success_rate"`
	CommonConditions   []string `json:"common_conditions"`
	MostActiveOfficers []string `json:"most_active_officers"`
}

// Event is one append-only audit log row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
