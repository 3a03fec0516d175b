package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	"github.com/smallbiznis/practicebooks/internal/session/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *domain.Session, attendees []domain.SessionAttendee) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		if len(attendees) == 0 {
			return nil
		}
		return tx.Create(&attendees).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) LoadDetail(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.SessionDetail, error) {
	details, err := r.LoadDetails(ctx, db, orgID, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, nil
	}
	return details[0], nil
}

type attendeeRow struct {
	SessionID     snowflake.ID
	ClientID      snowflake.ID
	Position      int
	Name          string
	Email         string
	PaymentMethod string
}

func (r *repo) LoadDetails(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]*domain.SessionDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db = db.WithContext(ctx)

	var sessions []domain.Session
	if err := db.Where("org_id = ? AND id IN ?", orgID, ids).Find(&sessions).Error; err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	var rows []attendeeRow
	err := db.Raw(
		`SELECT a.session_id, a.client_id, a.position, c.name, c.email, c.payment_method
		FROM session_attendees a
		JOIN clients c ON c.id = a.client_id AND c.org_id = a.org_id
		WHERE a.org_id = ? AND a.session_id IN ?
		ORDER BY a.session_id, a.position`,
		orgID, ids,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	attendees := map[snowflake.ID][]domain.Attendee{}
	for _, row := range rows {
		attendees[row.SessionID] = append(attendees[row.SessionID], domain.Attendee{
			ClientID:      row.ClientID,
			Name:          row.Name,
			Email:         row.Email,
			PaymentMethod: clientdomain.PaymentMethod(row.PaymentMethod),
			Position:      row.Position,
		})
	}

	serviceTypeIDs := make([]snowflake.ID, 0, len(sessions))
	contractorIDs := make([]snowflake.ID, 0, len(sessions))
	for _, s := range sessions {
		serviceTypeIDs = append(serviceTypeIDs, s.ServiceTypeID)
		contractorIDs = append(contractorIDs, s.ContractorID)
	}

	var serviceTypes []servicetypedomain.ServiceType
	if err := db.Where("org_id = ? AND id IN ?", orgID, serviceTypeIDs).Find(&serviceTypes).Error; err != nil {
		return nil, err
	}
	serviceTypeByID := make(map[snowflake.ID]servicetypedomain.ServiceType, len(serviceTypes))
	for _, st := range serviceTypes {
		serviceTypeByID[st.ID] = st
	}

	var contractors []contractordomain.Contractor
	if err := db.Where("org_id = ? AND id IN ?", orgID, contractorIDs).Find(&contractors).Error; err != nil {
		return nil, err
	}
	contractorByID := make(map[snowflake.ID]contractordomain.Contractor, len(contractors))
	for _, c := range contractors {
		contractorByID[c.ID] = c
	}

	var overrides []servicetypedomain.ContractorRateOverride
	err = db.Where("org_id = ? AND contractor_id IN ? AND service_type_id IN ?", orgID, contractorIDs, serviceTypeIDs).
		Find(&overrides).Error
	if err != nil {
		return nil, err
	}
	type overrideKey struct{ contractor, serviceType snowflake.ID }
	overrideByKey := make(map[overrideKey]*servicetypedomain.ContractorRateOverride, len(overrides))
	for i := range overrides {
		o := &overrides[i]
		overrideByKey[overrideKey{o.ContractorID, o.ServiceTypeID}] = o
	}

	byID := make(map[snowflake.ID]*domain.SessionDetail, len(sessions))
	for _, s := range sessions {
		contractor := contractorByID[s.ContractorID]
		byID[s.ID] = &domain.SessionDetail{
			Session:         s,
			Attendees:       attendees[s.ID],
			ServiceType:     serviceTypeByID[s.ServiceTypeID],
			ContractorName:  contractor.Name,
			ContractorEmail: contractor.Email,
			Override:        overrideByKey[overrideKey{s.ContractorID, s.ServiceTypeID}],
		}
	}

	out := make([]*domain.SessionDetail, 0, len(byID))
	for _, id := range ids {
		if detail, ok := byID[id]; ok {
			out = append(out, detail)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Session, error) {
	query := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("org_id = ?", filter.OrgID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ContractorID != 0 {
		query = query.Where("contractor_id = ?", filter.ContractorID)
	}
	if filter.ClientID != 0 {
		query = query.Where("id IN (?)", db.Model(&domain.SessionAttendee{}).
			Select("session_id").
			Where("org_id = ? AND client_id = ?", filter.OrgID, filter.ClientID))
	}
	if filter.From != nil {
		query = query.Where("session_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("session_date < ?", filter.To.UTC())
	}
	if filter.AfterID != 0 {
		query = query.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var sessions []*domain.Session
	if err := query.Order("id asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from []domain.Status, change domain.StatusChange) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	at := change.At.UTC()
	updates := map[string]any{
		"status":     change.To,
		"updated_at": at,
	}
	switch change.To {
	case domain.StatusSubmitted:
		updates["submitted_at"] = at
		updates["rejection_reason"] = nil
	case domain.StatusApproved:
		updates["approved_at"] = at
	case domain.StatusDraft:
		if change.RejectionReason != nil {
			updates["rejection_reason"] = *change.RejectionReason
			updates["rejected_at"] = at
		}
	case domain.StatusCancelled, domain.StatusNoShow:
		updates["cancelled_at"] = at
	}

	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("org_id = ? AND id = ? AND status IN ?", orgID, id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ? AND session_id = ?", orgID, id).
			Delete(&domain.SessionAttendee{}).Error; err != nil {
			return err
		}
		return tx.Where("org_id = ? AND id = ?", orgID, id).
			Delete(&domain.Session{}).Error
	})
}
