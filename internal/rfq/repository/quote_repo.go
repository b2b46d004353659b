package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/engine"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuoteFilter 列表筛选条件
type QuoteFilter struct {
	Statuses      []entity.Status
	ClientID      string
	FactoryID     string
	Search        string
	IncludeHidden bool
}

// 排序字段
const (
	SortPriority    = "priority"
	SortSubmittedAt = "submitted_at"
	SortModifiedAt  = "modified_at"
	SortCode        = "code"
)

var sortColumns = map[string]string{
	SortSubmittedAt: "submitted_at",
	SortModifiedAt:  "modified_at",
	SortCode:        "code",
}

// QuoteSort 列表排序
type QuoteSort struct {
	Field string
	Desc  bool
}

// QuotePatch carries the fields to overwrite; nil fields are left alone.
// With IfVersion set the patch only applies to that stored version.
type QuotePatch struct {
	IfVersion       *int
	Status          *entity.Status
	Hidden          *bool
	ResponseSummary *entity.ResponseSummary
	Negotiation     *entity.Negotiation
	Files           []string
	ModifiedAt      *time.Time
	AcceptedAt      *time.Time
}

// PatchFrom builds the patch that writes the negotiation state of q. It only
// applies while the stored quote is still at q.Version.
func PatchFrom(q entity.Quote) QuotePatch {
	status := q.Status
	negotiation := q.Negotiation
	version := q.Version
	return QuotePatch{
		IfVersion:       &version,
		Status:          &status,
		ResponseSummary: q.ResponseSummary,
		Negotiation:     &negotiation,
		ModifiedAt:      q.ModifiedAt,
		AcceptedAt:      q.AcceptedAt,
	}
}

// QuoteRepository 询价单仓库
type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// List 查询询价单列表
func (r *QuoteRepository) List(ctx context.Context, filter QuoteFilter, sort QuoteSort) ([]entity.Quote, error) {
	query := r.db.WithContext(ctx).Model(&entity.Quote{})

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.ClientID != "" {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.FactoryID != "" {
		query = query.Where("factory_id = ?", filter.FactoryID)
	}
	if !filter.IncludeHidden {
		query = query.Where("hidden = ?", false)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(code) LIKE ? OR LOWER(title) LIKE ?", like, like)
	}

	if col, ok := sortColumns[sort.Field]; ok {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: sort.Desc})
	} else {
		query = query.Order("submitted_at DESC")
	}

	var items []entity.Quote
	if err := query.Find(&items).Error; err != nil {
		return nil, mapError(err)
	}
	if sort.Field == "" || sort.Field == SortPriority {
		items = engine.SortQueue(items)
	}
	return items, nil
}

// FindByID 根据ID查询询价单
func (r *QuoteRepository) FindByID(ctx context.Context, id string) (*entity.Quote, error) {
	var q entity.Quote
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		return nil, mapError(err)
	}
	return &q, nil
}

// Get is FindByID for callers that want the remote-store vocabulary.
func (r *QuoteRepository) Get(ctx context.Context, id string) (*entity.Quote, error) {
	return r.FindByID(ctx, id)
}

// Create 创建询价单
func (r *QuoteRepository) Create(ctx context.Context, q *entity.Quote) error {
	if q.ID == "" {
		q.ID = uuid.New().String()[:32]
	}
	if q.Code == "" {
		code, err := r.GenerateCode(ctx)
		if err != nil {
			return fmt.Errorf("生成询价单编码失败: %w", err)
		}
		q.Code = code
	}
	if q.Status == "" {
		q.Status = entity.StatusPending
	}
	return mapError(r.db.WithContext(ctx).Create(q).Error)
}

// Patch applies p to the stored quote inside a transaction and returns the
// stored result. A history that drops or rewrites committed events is refused,
// and so is a patch built from a version that is no longer current.
func (r *QuoteRepository) Patch(ctx context.Context, id string, p QuotePatch) (*entity.Quote, error) {
	var out entity.Quote
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		load := tx
		if tx.Dialector.Name() == "postgres" {
			load = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var q entity.Quote
		if err := load.Where("id = ?", id).First(&q).Error; err != nil {
			return err
		}
		if p.IfVersion != nil && *p.IfVersion != q.Version {
			return fmt.Errorf("%w: 版本 %d，当前 %d", entity.ErrStaleWrite, *p.IfVersion, q.Version)
		}

		if p.Negotiation != nil {
			if !entity.ExtendsHistory(q.Negotiation.History, p.Negotiation.History) {
				return entity.ErrHistoryRewrite
			}
			q.Negotiation = p.Negotiation.Clone()
		}
		if p.Status != nil {
			q.Status = *p.Status
		}
		if p.Hidden != nil {
			q.Hidden = *p.Hidden
		}
		if p.ResponseSummary != nil {
			rs := *p.ResponseSummary
			q.ResponseSummary = &rs
		}
		if p.Files != nil {
			q.Files = p.Files
		}
		if p.ModifiedAt != nil {
			q.ModifiedAt = p.ModifiedAt
		}
		if p.AcceptedAt != nil {
			q.AcceptedAt = p.AcceptedAt
		}
		q.Negotiation.PruneApprovals(q.LineItemIDs())
		if p.Status != nil || p.Negotiation != nil || p.ResponseSummary != nil || p.Files != nil {
			q.Version++
		}

		if err := tx.Save(&q).Error; err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

// Delete 永久删除询价单
func (r *QuoteRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Quote{})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany 批量永久删除，返回实际删除数量
func (r *QuoteRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&entity.Quote{})
	if res.Error != nil {
		return 0, mapError(res.Error)
	}
	return res.RowsAffected, nil
}

// GenerateCode 生成询价单编码 RFQ-{year}-{4位}
func (r *QuoteRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("RFQ-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.Quote{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "RFQ-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("RFQ-%s-%04d", year, seq), nil
}
