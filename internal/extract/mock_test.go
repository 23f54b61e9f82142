package extract

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/docverify/internal/llm"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// phase matches requests for one extraction phase.
func phase(p string) any {
	return mock.MatchedBy(func(req llm.Request) bool { return req.Phase == p })
}
