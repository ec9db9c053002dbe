package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Store persists build jobs. Implementations return copies, never shared state.
type Store interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// Update applies fn to the stored job atomically and returns the result.
	Update(ctx context.Context, id string, fn func(*Job) error) (Job, error)
	// List returns jobs newest first.
	List(ctx context.Context) ([]Job, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("project %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	job = job.Clone()
	if err := fn(&job); err != nil {
		return Job{}, err
	}
	s.jobs[id] = job
	return job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Job, error) {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func sortNewestFirst(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

// jobRecord is the relational row for a job. The full job is kept as JSON in
// Data; Status and Name are copied out for indexing.
type jobRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Status    string `gorm:"size:32;index"`
	Data      string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (jobRecord) TableName() string { return "build_jobs" }

// GormStore persists jobs through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the job table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate build jobs: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewStore returns a GormStore when db is set and a MemoryStore otherwise.
func NewStore(db *gorm.DB) (Store, error) {
	if db == nil {
		return NewMemoryStore(), nil
	}
	return NewGormStore(db)
}

func (s *GormStore) Create(ctx context.Context, job Job) error {
	rec, err := toRecord(job)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Job, error) {
	var rec jobRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get project: %w", err)
	}
	return fromRecord(rec)
}

func (s *GormStore) Update(ctx context.Context, id string, fn func(*Job) error) (Job, error) {
	var out Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec jobRecord
		err := tx.First(&rec, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		job, err := fromRecord(rec)
		if err != nil {
			return err
		}
		if err := fn(&job); err != nil {
			return err
		}
		next, err := toRecord(job)
		if err != nil {
			return err
		}
		err = tx.Model(&jobRecord{}).Where("id = ?", id).Updates(map[string]any{
			"name":       next.Name,
			"status":     next.Status,
			"data":       next.Data,
			"updated_at": next.UpdatedAt,
		}).Error
		if err != nil {
			return err
		}
		out = job
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("update project: %w", err)
	}
	return out, nil
}

func (s *GormStore) List(ctx context.Context) ([]Job, error) {
	var recs []jobRecord
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Job, 0, len(recs))
	for _, rec := range recs {
		job, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&jobRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func toRecord(job Job) (jobRecord, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return jobRecord{}, fmt.Errorf("encode project %s: %w", job.ID, err)
	}
	return jobRecord{
		ID:        job.ID,
		Name:      job.Name,
		Status:    job.Status,
		Data:      string(data),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

func fromRecord(rec jobRecord) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(rec.Data), &job); err != nil {
		return Job{}, fmt.Errorf("decode project %s: %w", rec.ID, err)
	}
	return job, nil
}
