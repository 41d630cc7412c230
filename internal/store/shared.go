package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/meridian-group/econwatch/internal/model"
)

func prepareRun(run *model.IngestionRun) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
}

func prepareFinding(finding *model.Finding) {
	if finding.ID == "" {
		finding.ID = uuid.New().String()
	}
	if finding.CreatedAt.IsZero() {
		finding.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
}

func prepareRecommendation(rec *model.Recommendation) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = model.RecStatusDraft
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
}

func encodeObsJSON(obs *model.Observation) (metadata, raw any, err error) {
	if obs.Metadata != nil {
		data, err := json.Marshal(obs.Metadata)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal observation metadata")
		}
		metadata = data
	}
	if len(obs.Raw) > 0 {
		raw = []byte(obs.Raw)
	}
	return metadata, raw, nil
}

func encodeFindingJSON(finding *model.Finding) (thresholds, evidence any, after json.RawMessage, err error) {
	if finding.Thresholds != nil {
		data, err := json.Marshal(finding.Thresholds)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "store: marshal finding thresholds")
		}
		thresholds = data
	}
	if finding.Evidence != nil {
		data, err := json.Marshal(finding.Evidence)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "store: marshal finding evidence")
		}
		evidence = data
	}
	after, err = json.Marshal(finding)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal finding")
	}
	return thresholds, evidence, after, nil
}

func encodeRecJSON(rec *model.Recommendation) (findingIDs, entities any, after json.RawMessage, err error) {
	if rec.FindingIDs != nil {
		data, err := json.Marshal(rec.FindingIDs)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "store: marshal finding ids")
		}
		findingIDs = data
	}
	if rec.Entities != nil {
		data, err := json.Marshal(rec.Entities)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "store: marshal entities")
		}
		entities = data
	}
	after, err = json.Marshal(rec)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal recommendation")
	}
	return findingIDs, entities, after, nil
}

func observationAuditEntry(obs *model.Observation, before json.RawMessage, actor string) (*model.AuditEntry, error) {
	after, err := json.Marshal(obs)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal observation")
	}

	action := model.ActionObservationCommit
	if obs.Revision > 0 {
		action = model.ActionObservationRevise
	}
	return &model.AuditEntry{
		Actor:        actor,
		Action:       action,
		Outcome:      model.AuditSuccess,
		ResourceType: "observation",
		ResourceID:   obs.ID,
		Jurisdiction: obs.Jurisdiction,
		Before:       before,
		After:        after,
		Detail:       fmt.Sprintf("%s revision %d", obs.Key(), obs.Revision),
	}, nil
}

func purgeAuditEntry(cutoff model.Period, purged int64, actor string) *model.AuditEntry {
	return &model.AuditEntry{
		Actor:        actor,
		Action:       model.ActionObservationPurge,
		Outcome:      model.AuditSuccess,
		ResourceType: "observation",
		ResourceID:   string(cutoff),
		Detail:       fmt.Sprintf("purged %d revisions with periods before %s", purged, cutoff),
	}
}

func findingAuditEntry(finding *model.Finding, after json.RawMessage, actor string) *model.AuditEntry {
	return &model.AuditEntry{
		Actor:        actor,
		Action:       model.ActionFindingStore,
		Outcome:      model.AuditSuccess,
		ResourceType: "finding",
		ResourceID:   finding.ID,
		Jurisdiction: finding.Jurisdiction,
		After:        after,
		Detail:       fmt.Sprintf("%s %s/%s %s", finding.Severity, finding.Subject.Entity, finding.Subject.Indicator, finding.Period),
	}
}

func recommendationCreateEntry(rec *model.Recommendation, after json.RawMessage, actor string) *model.AuditEntry {
	return &model.AuditEntry{
		Actor:        actor,
		Action:       model.ActionRecommendationNew,
		Outcome:      model.AuditSuccess,
		ResourceType: "recommendation",
		ResourceID:   rec.ID,
		Jurisdiction: rec.Jurisdiction,
		After:        after,
		Detail:       fmt.Sprintf("%s/%s priority %s", rec.Jurisdiction, rec.PolicyArea, rec.Priority),
	}
}

func transitionSuccessEntry(rec *model.Recommendation, prior model.RecommendationStatus, actor string) *model.AuditEntry {
	before, _ := json.Marshal(map[string]string{"status": string(prior)})
	after, _ := json.Marshal(map[string]string{"status": string(rec.Status)})
	return &model.AuditEntry{
		Actor:        actor,
		Action:       model.ActionRecommendationTxn,
		Outcome:      model.AuditSuccess,
		ResourceType: "recommendation",
		ResourceID:   rec.ID,
		Jurisdiction: rec.Jurisdiction,
		Before:       before,
		After:        after,
		Detail:       fmt.Sprintf("%s -> %s", prior, rec.Status),
	}
}

func transitionFailureEntry(rec *model.Recommendation, next model.RecommendationStatus, actor string, cause error) *model.AuditEntry {
	return &model.AuditEntry{
		Actor:        actor,
		Action:       model.ActionRecommendationTxn,
		Outcome:      model.AuditFailure,
		ResourceType: "recommendation",
		ResourceID:   rec.ID,
		Jurisdiction: rec.Jurisdiction,
		Detail:       fmt.Sprintf("rejected %s -> %s: %s", rec.Status, next, cause),
	}
}
