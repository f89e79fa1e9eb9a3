package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/quillbooks/quillbooks/storage"
)

// Store wraps a storage.Repository with typed load/save helpers for the
// ledger domain records.
type Store struct {
	repo storage.Repository
}

// NewStore returns a Store over the given repository.
func NewStore(repo storage.Repository) *Store {
	return &Store{repo: repo}
}

// PutOrganization creates or replaces an organization record.
func (s *Store) PutOrganization(org Organization) error {
	rec, err := storage.NewRecord(org)
	if err != nil {
		return err
	}
	return s.repo.Put(scopeDirectory, recordTypeOrg, org.ID, rec)
}

// GetOrganization loads an organization by ID.
func (s *Store) GetOrganization(orgID string) (*Organization, error) {
	rec, err := s.repo.Get(scopeDirectory, recordTypeOrg, orgID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", orgID, ErrOrganizationNotFound)
		}
		return nil, err
	}
	var org Organization
	if err := rec.Decode(&org); err != nil {
		return nil, err
	}
	return &org, nil
}

// PutLedger creates or replaces a ledger record.
func (s *Store) PutLedger(l Ledger) error {
	rec, err := storage.NewRecord(l)
	if err != nil {
		return err
	}
	return s.repo.Put(scopeDirectory, recordTypeLedger, l.ID, rec)
}

// GetLedger loads a ledger by ID.
func (s *Store) GetLedger(ledgerID string) (*Ledger, error) {
	rec, err := s.repo.Get(scopeDirectory, recordTypeLedger, ledgerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", ledgerID, ErrLedgerNotFound)
		}
		return nil, err
	}
	var l Ledger
	if err := rec.Decode(&l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLedgers returns every ledger owned by the given organization.
func (s *Store) ListLedgers(orgID string) ([]Ledger, error) {
	ids, err := s.repo.List(scopeDirectory, recordTypeLedger)
	if err != nil {
		return nil, err
	}
	var ledgers []Ledger
	for _, id := range ids {
		l, err := s.GetLedger(id)
		if err != nil {
			return nil, err
		}
		if l.OrganizationID == orgID {
			ledgers = append(ledgers, *l)
		}
	}
	sort.Slice(ledgers, func(i, j int) bool { return ledgers[i].ID < ledgers[j].ID })
	return ledgers, nil
}

// PutMembership creates or replaces a membership row under the organization
// scope, keyed by user ID.
func (s *Store) PutMembership(m Membership) error {
	rec, err := storage.NewRecord(m)
	if err != nil {
		return err
	}
	return s.repo.Put(m.OrganizationID, recordTypeMember, m.UserID, rec)
}

// GetMembership loads the membership row for (orgID, userID). A missing row
// is reported as storage.ErrNotFound.
func (s *Store) GetMembership(orgID, userID string) (*Membership, error) {
	rec, err := s.repo.Get(orgID, recordTypeMember, userID)
	if err != nil {
		return nil, err
	}
	var m Membership
	if err := rec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemberships returns every membership row for an organization.
func (s *Store) ListMemberships(orgID string) ([]Membership, error) {
	ids, err := s.repo.List(orgID, recordTypeMember)
	if err != nil {
		return nil, err
	}
	var members []Membership
	for _, id := range ids {
		m, err := s.GetMembership(orgID, id)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// AppendAudit writes an audit record under the ledger scope. Records are
// append-only; there is no update or delete path.
func (s *Store) AppendAudit(entry AuditRecord) error {
	rec, err := storage.NewRecord(entry)
	if err != nil {
		return err
	}
	return s.repo.Put(entry.LedgerID, recordTypeAudit, entry.ID, rec)
}

// ListAudit returns the audit records for a ledger, newest first.
func (s *Store) ListAudit(ledgerID string) ([]AuditRecord, error) {
	ids, err := s.repo.List(ledgerID, recordTypeAudit)
	if err != nil {
		return nil, err
	}
	entries := make([]AuditRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.repo.Get(ledgerID, recordTypeAudit, id)
		if err != nil {
			continue
		}
		var entry AuditRecord
		if err := rec.Decode(&entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
