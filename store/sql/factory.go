package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-submissions/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	mirrorStore     *MirrorStore
	credentialStore *CredentialStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.mirrorStore != nil && f.credentialStore != nil {
		return nil
	}
	mirrorStore, err := NewMirrorStore(f.db)
	if err != nil {
		return err
	}
	credentialStore, err := NewCredentialStore(f.db)
	if err != nil {
		return err
	}
	f.mirrorStore = mirrorStore
	f.credentialStore = credentialStore
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) MirrorStore() *MirrorStore {
	if f == nil {
		return nil
	}
	return f.mirrorStore
}

// CachedMirrorStore wraps the mirror store with a read-through cache.
func (f *RepositoryFactory) CachedMirrorStore(cacheService repositorycache.CacheService) (*CachedMirrorStore, error) {
	if f == nil || f.mirrorStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory has no mirror store")
	}
	return NewCachedMirrorStore(f.mirrorStore, cacheService)
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
