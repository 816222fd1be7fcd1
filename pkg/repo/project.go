package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/project"
)

// ProjectRecord is one stored project. Document holds the full project
// JSON; Name and Kind are copied out for listing.
type ProjectRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Owner     string         `gorm:"column:owner;not null;index" json:"owner"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Kind      string         `gorm:"column:kind;not null" json:"kind"`
	Document  datatypes.JSON `gorm:"column:document" json:"document"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ProjectRecord) TableName() string { return "project" }

// ShareRecord maps a public share token to a project.
type ShareRecord struct {
	Token     string    `gorm:"column:token;primaryKey" json:"token"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ShareRecord) TableName() string { return "project_share" }

// ToProject decodes the stored document.
func (rec *ProjectRecord) ToProject() (project.Project, error) {
	p := project.New(rec.Name, project.Kind(rec.Kind))
	if len(rec.Document) > 0 {
		if err := json.Unmarshal(rec.Document, &p); err != nil {
			return project.Project{}, fmt.Errorf("repo: decode project %s: %w", rec.ID, err)
		}
	}
	p.ID = rec.ID.String()
	p.Name = rec.Name
	p.Kind = project.Kind(rec.Kind)
	p.UpdatedAt = rec.UpdatedAt
	return p, nil
}

func encodeDocument(p project.Project) (datatypes.JSON, error) {
	p.ID = ""
	p.UpdatedAt = time.Time{}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("repo: encode project: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// ProjectRepo persists projects scoped to their owner.
type ProjectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, owner string, p project.Project) (project.Project, error)
	Get(ctx context.Context, tx *gorm.DB, owner, id string) (project.Project, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (project.Project, error)
	List(ctx context.Context, tx *gorm.DB, owner string) ([]project.Project, error)
	Update(ctx context.Context, tx *gorm.DB, owner string, p project.Project) (project.Project, error)
	Delete(ctx context.Context, tx *gorm.DB, owner, id string) error
	CreateShare(ctx context.Context, tx *gorm.DB, owner, id string) (string, error)
	ResolveShare(ctx context.Context, tx *gorm.DB, token string) (string, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	repoLog := baseLog.With("repo", "ProjectRepo")
	return &projectRepo{db: db, log: repoLog, now: func() time.Time { return time.Now().UTC() }}
}

func (r *projectRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *projectRepo) Create(ctx context.Context, tx *gorm.DB, owner string, p project.Project) (project.Project, error) {
	transaction := r.conn(tx)

	doc, err := encodeDocument(p)
	if err != nil {
		return project.Project{}, err
	}
	now := r.now()
	rec := &ProjectRecord{
		ID:        uuid.New(),
		Owner:     owner,
		Name:      p.Name,
		Kind:      string(p.Kind),
		Document:  doc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := transaction.WithContext(ctx).Create(rec).Error; err != nil {
		return project.Project{}, fmt.Errorf("repo: create project: %w", err)
	}
	r.log.Debug("project created", "project_id", rec.ID, "owner", owner)
	return rec.ToProject()
}

func (r *projectRepo) find(ctx context.Context, tx *gorm.DB, id string, scope func(*gorm.DB) *gorm.DB) (*ProjectRecord, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	q := r.conn(tx).WithContext(ctx).Where("id = ?", pid)
	if scope != nil {
		q = scope(q)
	}
	var rec ProjectRecord
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repo: get project %s: %w", id, err)
	}
	return &rec, nil
}

func ownedBy(owner string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB { return q.Where("owner = ?", owner) }
}

func (r *projectRepo) Get(ctx context.Context, tx *gorm.DB, owner, id string) (project.Project, error) {
	rec, err := r.find(ctx, tx, id, ownedBy(owner))
	if err != nil {
		return project.Project{}, err
	}
	return rec.ToProject()
}

// GetByID ignores ownership. It backs public share lookups.
func (r *projectRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (project.Project, error) {
	rec, err := r.find(ctx, tx, id, nil)
	if err != nil {
		return project.Project{}, err
	}
	return rec.ToProject()
}

func (r *projectRepo) List(ctx context.Context, tx *gorm.DB, owner string) ([]project.Project, error) {
	transaction := r.conn(tx)

	var recs []*ProjectRecord
	if err := transaction.WithContext(ctx).
		Where("owner = ?", owner).
		Order("updated_at DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("repo: list projects: %w", err)
	}
	out := make([]project.Project, 0, len(recs))
	for _, rec := range recs {
		p, err := rec.ToProject()
		if err != nil {
			r.log.Warn("skipping undecodable project", "project_id", rec.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Update replaces the stored document. Last write wins.
func (r *projectRepo) Update(ctx context.Context, tx *gorm.DB, owner string, p project.Project) (project.Project, error) {
	pid, err := uuid.Parse(p.ID)
	if err != nil {
		return project.Project{}, ErrNotFound
	}
	doc, err := encodeDocument(p)
	if err != nil {
		return project.Project{}, err
	}

	res := r.conn(tx).WithContext(ctx).
		Model(&ProjectRecord{}).
		Where("id = ? AND owner = ?", pid, owner).
		Updates(map[string]interface{}{
			"name":       p.Name,
			"kind":       string(p.Kind),
			"document":   doc,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return project.Project{}, fmt.Errorf("repo: update project %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return project.Project{}, ErrNotFound
	}
	return r.Get(ctx, tx, owner, p.ID)
}

// Delete soft-deletes the project and drops its share tokens.
func (r *projectRepo) Delete(ctx context.Context, tx *gorm.DB, owner, id string) error {
	pid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	return r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		res := txx.Where("id = ? AND owner = ?", pid, owner).Delete(&ProjectRecord{})
		if res.Error != nil {
			return fmt.Errorf("repo: delete project %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := txx.Where("project_id = ?", pid).Delete(&ShareRecord{}).Error; err != nil {
			return fmt.Errorf("repo: delete shares of %s: %w", id, err)
		}
		return nil
	})
}

// CreateShare issues a new public token for an owned project.
func (r *projectRepo) CreateShare(ctx context.Context, tx *gorm.DB, owner, id string) (string, error) {
	rec, err := r.find(ctx, tx, id, ownedBy(owner))
	if err != nil {
		return "", err
	}
	share := &ShareRecord{Token: uuid.NewString(), ProjectID: rec.ID, CreatedAt: r.now()}
	if err := r.conn(tx).WithContext(ctx).Create(share).Error; err != nil {
		return "", fmt.Errorf("repo: create share for %s: %w", id, err)
	}
	return share.Token, nil
}

// ResolveShare returns the project id behind token.
func (r *projectRepo) ResolveShare(ctx context.Context, tx *gorm.DB, token string) (string, error) {
	var share ShareRecord
	if err := r.conn(tx).WithContext(ctx).Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("repo: resolve share: %w", err)
	}
	return share.ProjectID.String(), nil
}
