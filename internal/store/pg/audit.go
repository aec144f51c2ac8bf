package pg

import (
	"context"

	"custodia.org/internal/audit"
)

var _ audit.Ledger = (*Store)(nil)

func (s *Store) AppendEvent(ctx context.Context, event audit.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events (request_id, endpoint, origin_ip, principal_id, success, occurred_at)
		values ($1, $2, $3, $4, $5, $6)
	`, nullIfEmpty(event.RequestID), event.Endpoint, event.OriginIP,
		event.PrincipalID, event.Success, event.OccurredAt.UTC())
	return err
}

func (s *Store) ReadEventsForPrincipal(ctx context.Context, principalID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		select coalesce(request_id, ''), endpoint, origin_ip, principal_id, success, occurred_at
		from audit_events
		where principal_id = $1
		order by occurred_at, id
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.RequestID, &e.Endpoint, &e.OriginIP,
			&e.PrincipalID, &e.Success, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) ReadAllPrincipalIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct principal_id from audit_events order by principal_id
	`)
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
	return ids, rows.Err()
}
