package inmemdb

import (
	"context"
	"sort"

	"github.com/shulehq/shule/core/iep"
)

type iepRepository struct {
	db *iepTable
}

func NewIEPRepository(db *DB) iep.Repository {
	return &iepRepository{db: db.iep}
}

func (repo *iepRepository) CreateIEP(ctx context.Context, doc iep.IEP) (iep.IEP, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[doc.ID] = &doc
	return doc, nil
}

func (repo *iepRepository) GetIEP(ctx context.Context, id string) (iep.IEP, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if doc, ok := repo.db.table[id]; ok {
		return *doc, nil
	}
	return iep.IEP{}, iep.ErrNotFound
}

func (repo *iepRepository) FilterIEPs(ctx context.Context, studentID string) ([]iep.IEP, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var docs []iep.IEP
	for _, doc := range repo.db.table {
		if doc.StudentID == studentID {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func (repo *iepRepository) UpdateIEP(ctx context.Context, doc iep.IEP) (iep.IEP, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[doc.ID]
	if !ok {
		return iep.IEP{}, iep.ErrNotFound
	}
	doc.CreatedAt = orig.CreatedAt
	repo.db.table[doc.ID] = &doc
	return doc, nil
}

func (repo *iepRepository) DeleteIEPsByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
