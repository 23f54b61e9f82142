package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/docverify/internal/model"
	"github.com/sells-group/docverify/internal/store"
)

// --- Classifier Mock ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, text, hint string) model.Classification {
	args := m.Called(ctx, text, hint)
	return args.Get(0).(model.Classification)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractDocument(ctx context.Context, text string, schema *model.DocumentSchema, shipmentID string) *model.Record {
	args := m.Called(ctx, text, schema, shipmentID)
	return args.Get(0).(*model.Record)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveDocument(ctx context.Context, doc *model.StoredDocument) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockStore) GetDocument(ctx context.Context, id string) (*model.StoredDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredDocument), args.Error(1)
}

func (m *mockStore) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]model.StoredDocument, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredDocument), args.Error(1)
}

func (m *mockStore) SaveVerification(ctx context.Context, res *model.VerificationResult) error {
	return m.Called(ctx, res).Error(0)
}

func (m *mockStore) GetVerification(ctx context.Context, id string) (*model.VerificationResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VerificationResult), args.Error(1)
}

func (m *mockStore) ListVerifications(ctx context.Context, filter store.VerificationFilter) ([]model.VerificationResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VerificationResult), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }
