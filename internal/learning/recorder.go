// Package learning implements the override-learning subsystem: recording
// underwriter overrides, finding similar historical cases, and mining
// cross-case override patterns into feedback signals.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/rules"
)

// Recorder persists override records and emits audit events when a
// human choice diverges from a system recommendation.
type Recorder struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewRecorder creates a new override recorder.
func NewRecorder(repo domain.Repository, bus domain.EventBus) *Recorder {
	return &Recorder{repo: repo, bus: bus}
}

// RecordInput holds the caller-supplied fields of an override.
type RecordInput struct {
	CaseID string

	OverrideType string
	Direction    string

	SystemRecommendation string
	SystemDetails        map[string]interface{}
	SystemConfidence     *float64

	UnderwriterChoice string
	ChoiceDetails     map[string]interface{}

	Reasoning     string
	ReasoningTags []string

	UnderwriterID              string
	UnderwriterName            string
	UnderwriterExperienceYears int
}

func (in *RecordInput) validate() error {
	if in.CaseID == "" {
		return fmt.Errorf("caseId is required")
	}
	if !validOverrideType(in.OverrideType) {
		return fmt.Errorf("invalid override type %q", in.OverrideType)
	}
	if !validDirection(in.Direction) {
		return fmt.Errorf("invalid direction %q", in.Direction)
	}
	if in.Reasoning == "" {
		return fmt.Errorf("reasoning is required")
	}
	if in.UnderwriterID == "" {
		return fmt.Errorf("underwriterId is required")
	}
	return nil
}

func validOverrideType(t string) bool {
	switch t {
	case domain.OverrideComplexityTier, domain.OverrideTestRecommendation,
		domain.OverrideDecisionOption, domain.OverrideRiskSeverity:
		return true
	}
	return false
}

func validDirection(d string) bool {
	switch d {
	case domain.DirectionUpgrade, domain.DirectionDowngrade,
		domain.DirectionSubstitute, domain.DirectionAdd, domain.DirectionRemove:
		return true
	}
	return false
}

// Record snapshots the referenced case and persists the override.
// Fails with the repository's not-found error when the case does not
// exist. The snapshot is captured once here and never recomputed:
// later mutation of the live case must not change historical training
// data.
func (r *Recorder) Record(ctx context.Context, tenantID string, in *RecordInput) (*domain.Override, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c, err := r.repo.GetCase(ctx, tenantID, in.CaseID)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", in.CaseID, err)
	}

	now := time.Now().UTC()
	o := &domain.Override{
		ID:                         uuid.New().String(),
		TenantID:                   tenantID,
		CaseID:                     in.CaseID,
		OverrideType:               in.OverrideType,
		Direction:                  in.Direction,
		SystemRecommendation:       in.SystemRecommendation,
		SystemDetails:              in.SystemDetails,
		SystemConfidence:           in.SystemConfidence,
		UnderwriterChoice:          in.UnderwriterChoice,
		ChoiceDetails:              in.ChoiceDetails,
		Reasoning:                  in.Reasoning,
		ReasoningTags:              in.ReasoningTags,
		ContextSnapshot:            snapshotCase(c, now),
		UnderwriterID:              in.UnderwriterID,
		UnderwriterName:            in.UnderwriterName,
		UnderwriterExperienceYears: in.UnderwriterExperienceYears,
		CreatedAt:                  now,
	}

	if err := r.repo.SaveOverride(ctx, tenantID, o); err != nil {
		return nil, fmt.Errorf("failed to save override: %w", err)
	}

	r.publishAudit(ctx, tenantID, domain.TopicOverrideRecorded, o)
	return o, nil
}

// Validate marks an override as reviewed by a senior role and opts it
// into training. Idempotent: re-validating an already-validated
// override is a no-op.
func (r *Recorder) Validate(ctx context.Context, tenantID, overrideID, validatedBy, notes string) (*domain.Override, error) {
	o, err := r.repo.GetOverride(ctx, tenantID, overrideID)
	if err != nil {
		return nil, fmt.Errorf("override %s: %w", overrideID, err)
	}
	if o.Validated {
		return o, nil
	}

	o.Validated = true
	o.ValidatedBy = validatedBy
	o.ValidationNotes = notes
	o.IncludeInTraining = true

	if err := r.repo.UpdateOverride(ctx, tenantID, o); err != nil {
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	r.publishAudit(ctx, tenantID, domain.TopicOverrideValidated, o)
	return o, nil
}

// FlagForReview marks an override as questionable. Idempotent on an
// already-flagged override.
func (r *Recorder) FlagForReview(ctx context.Context, tenantID, overrideID, reason string) (*domain.Override, error) {
	o, err := r.repo.GetOverride(ctx, tenantID, overrideID)
	if err != nil {
		return nil, fmt.Errorf("override %s: %w", overrideID, err)
	}
	if o.FlaggedForReview {
		return o, nil
	}

	o.FlaggedForReview = true
	o.FlagReason = reason

	if err := r.repo.UpdateOverride(ctx, tenantID, o); err != nil {
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	r.publishAudit(ctx, tenantID, domain.TopicOverrideFlagged, o)
	return o, nil
}

// publishAudit emits one audit event describing the transition
// systemRecommendation -> underwriterChoice. Delivery is fire-and-forget
// from the recorder's perspective; a publish failure is logged, never
// propagated into the recording call.
func (r *Recorder) publishAudit(ctx context.Context, tenantID, topic string, o *domain.Override) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.AuditEvent{
		OverrideID:           o.ID,
		CaseID:               o.CaseID,
		OverrideType:         o.OverrideType,
		Direction:            o.Direction,
		SystemRecommendation: o.SystemRecommendation,
		UnderwriterChoice:    o.UnderwriterChoice,
		UnderwriterID:        o.UnderwriterID,
		Timestamp:            time.Now().UnixNano(),
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish audit event",
			"topic", topic,
			"override_id", o.ID,
			"error", err,
		)
	}
}

// snapshotCase freezes the case state relevant to learning.
func snapshotCase(c *domain.Case, now time.Time) domain.ContextSnapshot {
	age := c.Applicant.Age
	if age == 0 && c.Applicant.DateOfBirth != "" {
		if a, ok := rules.AgeFromDOB(c.Applicant.DateOfBirth, now); ok {
			age = a
		}
	}
	return domain.ContextSnapshot{
		ApplicantAge: age,
		SumAssured:   c.SumAssured,
		Conditions:   c.ConditionNames(),
		Medications:  c.MedicationNames(),
		RiskFactors:  c.RiskFactorNames(),
		TestResults:  c.TestResultSummaries(),
	}
}
