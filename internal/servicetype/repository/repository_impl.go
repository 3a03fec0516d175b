package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, st *domain.ServiceType) error {
	return db.WithContext(ctx).Create(st).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, st *domain.ServiceType) error {
	res := db.WithContext(ctx).
		Model(&domain.ServiceType{}).
		Where("org_id = ? AND id = ?", st.OrgID, st.ID).
		Updates(map[string]any{
			"name":                    st.Name,
			"base_rate":               st.BaseRate,
			"per_person_rate":         st.PerPersonRate,
			"commission_percent":      st.CommissionPercent,
			"rent_percent":            st.RentPercent,
			"contractor_cap":          st.ContractorCap,
			"is_scholarship_eligible": st.IsScholarshipEligible,
			"scholarship_rate":        st.ScholarshipRate,
			"archived":                st.Archived,
			"updated_at":              st.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.ServiceType, error) {
	var st domain.ServiceType
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&st).Error
	if err != nil {
		return nil, err
	}
	if st.ID == 0 {
		return nil, nil
	}
	return &st, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, includeArchived bool) ([]*domain.ServiceType, error) {
	var items []*domain.ServiceType
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if !includeArchived {
		stmt = stmt.Where("archived = ?", false)
	}
	if err := stmt.Order("name asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertOverride(ctx context.Context, db *gorm.DB, o *domain.ContractorRateOverride) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}, {Name: "contractor_id"}, {Name: "service_type_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"base_rate", "per_person_rate", "commission_percent", "contractor_cap", "updated_at",
		}),
	}).Create(o).Error
}

func (r *repo) FindOverride(ctx context.Context, db *gorm.DB, orgID, contractorID, serviceTypeID snowflake.ID) (*domain.ContractorRateOverride, error) {
	var o domain.ContractorRateOverride
	err := db.WithContext(ctx).
		Where("org_id = ? AND contractor_id = ? AND service_type_id = ?", orgID, contractorID, serviceTypeID).
		Limit(1).
		Find(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) DeleteOverride(ctx context.Context, db *gorm.DB, orgID, contractorID, serviceTypeID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND contractor_id = ? AND service_type_id = ?", orgID, contractorID, serviceTypeID).
		Delete(&domain.ContractorRateOverride{}).Error
}
