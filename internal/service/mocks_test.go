package service

import (
	"context"
	"io"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore mocks the SessionStore interface
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	args := m.Called(ctx, id, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) Release(ctx context.Context, id, claimToken string) error {
	args := m.Called(ctx, id, claimToken)
	return args.Error(0)
}

func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockArtifactStore mocks the ArtifactStore interface
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Store(ctx context.Context, fileName string, data []byte) (*domain.Artifact, error) {
	args := m.Called(ctx, fileName, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Artifact), args.Error(1)
}

func (m *MockArtifactStore) Open(ctx context.Context, fileName string) (io.ReadCloser, *domain.ArtifactInfo, error) {
	args := m.Called(ctx, fileName)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*domain.ArtifactInfo), args.Error(2)
}

func (m *MockArtifactStore) URL(key string) string {
	args := m.Called(key)
	return args.String(0)
}

// MockRenderer mocks the Renderer interface
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, session *domain.Session) ([]byte, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockPurger mocks the SessionPurger interface
type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) Purge(ctx context.Context, createdBefore time.Time) (int64, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).(int64), args.Error(1)
}
