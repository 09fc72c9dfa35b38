package dbstore

import (
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
)

// ProfileStore persists customer profiles, accumulating per-customer
// session counters as sessions complete (counting whether each completed
// session was escalated).
type ProfileStore struct {
	client *Client
}

// NewProfileStore builds a ProfileStore over client.
func NewProfileStore(client *Client) *ProfileStore {
	return &ProfileStore{client: client}
}

// Get loads the profile by customer id.
func (s *ProfileStore) Get(customerID string) (session.Profile, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var (
		p           session.Profile
		identityRaw []byte
		tagsRaw     []byte
		notesRaw    []byte
	)
	err := s.client.db.QueryRowContext(ctx, `
SELECT id, identity, first_contact, last_contact, total_sessions, resolved_issues,
	escalated_issues, average_resolution_time_ms, tags, notes
FROM customer_profiles WHERE id = $1`, customerID).Scan(
		&p.ID, &identityRaw, &p.FirstContact, &p.LastContact, &p.TotalSessions,
		&p.ResolvedIssues, &p.EscalatedIssues, &p.AverageResolutionTime, &tagsRaw, &notesRaw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return session.Profile{}, coreerr.NewNotFoundError("customer_profile", customerID)
	}
	if err != nil {
		return session.Profile{}, coreerr.NewTransientIOError("select profile", err)
	}
	if err := json.Unmarshal(identityRaw, &p.Identity); err != nil {
		return session.Profile{}, coreerr.NewTransientIOError("decode profile identity", err)
	}
	if err := json.Unmarshal(tagsRaw, &p.Tags); err != nil {
		return session.Profile{}, coreerr.NewTransientIOError("decode profile tags", err)
	}
	if err := json.Unmarshal(notesRaw, &p.Notes); err != nil {
		return session.Profile{}, coreerr.NewTransientIOError("decode profile notes", err)
	}
	return p, nil
}

// RecordCompletion folds a completed session into the customer's profile:
// first/last contact, session counters, and the running average
// resolution time. escalated marks whether the session was escalated at
// any point of its life.
func (s *ProfileStore) RecordCompletion(sess session.Session, escalated bool) error {
	ctx, cancel := opCtx()
	defer cancel()

	identityRaw, err := json.Marshal(sess.Customer)
	if err != nil {
		return coreerr.NewTransientIOError("encode profile identity", err)
	}

	now := time.Now()
	escalatedInc := 0
	if escalated {
		escalatedInc = 1
	}

	// The running average folds in the new resolution time server-side, so
	// concurrent completions for the same customer don't lose updates.
	_, err = s.client.db.ExecContext(ctx, `
INSERT INTO customer_profiles (id, identity, first_contact, last_contact, total_sessions,
	resolved_issues, escalated_issues, average_resolution_time_ms)
VALUES ($1, $2, $3, $3, 1, 1, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	identity = EXCLUDED.identity,
	last_contact = EXCLUDED.last_contact,
	total_sessions = customer_profiles.total_sessions + 1,
	resolved_issues = customer_profiles.resolved_issues + 1,
	escalated_issues = customer_profiles.escalated_issues + $4,
	average_resolution_time_ms = (customer_profiles.average_resolution_time_ms *
		customer_profiles.total_sessions + $5) / (customer_profiles.total_sessions + 1)`,
		sess.Customer.ID, identityRaw, now, escalatedInc, sess.ResolutionTimeMS)
	if err != nil {
		return coreerr.NewTransientIOError("upsert profile", err)
	}
	return nil
}
