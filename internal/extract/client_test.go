package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docverify/internal/llm"
	"github.com/sells-group/docverify/internal/model"
)

func identitySection() model.Section {
	return model.Section{
		Name:             "identity",
		Instruction:      "Extract the invoice identifiers.",
		RetryInstruction: "Return invoice_no and invoice_date exactly.",
		Fields: []model.FieldSchema{
			{Name: "invoice_no", Type: model.FieldString, Tier: model.TierCritical},
			{Name: "invoice_date", Type: model.FieldDate, Tier: model.TierCritical},
			{Name: "currency", Type: model.FieldEnum, Tier: model.TierInformative, Options: []string{"USD"}},
		},
	}
}

func TestClient_Extract(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Phase == "extract/identity" &&
			req.Temperature == 0 &&
			req.MaxTokens == 2048 &&
			strings.Contains(req.System, "JSON") &&
			strings.Contains(req.Prompt, `"name": "invoice_no"`) &&
			strings.Contains(req.Prompt, "Extract the invoice identifiers.") &&
			strings.Contains(req.Prompt, "INVOICE 222500187")
	})).Return("```json\n{\"invoice_no\":\"222500187\",\"invoice_date\":\"17.07.2025\",\"currency\":\"USD\"}\n```", nil).Once()

	c := NewClient(m, Config{})
	fields, err := c.Extract(context.Background(), "INVOICE 222500187 dated 17.07.2025", identitySection(), identitySection().Instruction)
	require.NoError(t, err)
	assert.Equal(t, "222500187", fields["invoice_no"])
	assert.Equal(t, "17.07.2025", fields["invoice_date"])
	m.AssertExpectations(t)
}

func TestClient_Extract_CriticalRetryOverlays(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, phase("extract/identity")).
		Return(`{"invoice_no":"222500187","invoice_date":null,"currency":"USD"}`, nil).Once()
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Phase == "extract/identity/retry" &&
			strings.Contains(req.Prompt, "Return invoice_no and invoice_date exactly.")
	})).Return(`{"invoice_no":"","invoice_date":"17.07.2025"}`, nil).Once()

	c := NewClient(m, Config{})
	fields, attempts, err := c.extract(context.Background(), "text", identitySection(), identitySection().Instruction)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	// A blank value in the retry never erases a value from the first answer.
	assert.Equal(t, "222500187", fields["invoice_no"])
	assert.Equal(t, "17.07.2025", fields["invoice_date"])
	assert.Equal(t, "USD", fields["currency"])
	m.AssertExpectations(t)
}

func TestClient_Extract_RetriesAtMostOnce(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.Anything).Return(`{"invoice_no":null}`, nil).Twice()

	c := NewClient(m, Config{})
	fields, err := c.Extract(context.Background(), "text", identitySection(), "x")
	require.NoError(t, err)
	assert.Nil(t, fields["invoice_no"])
	m.AssertNumberOfCalls(t, "Generate", 2)
}

func TestClient_Extract_GenericRetryInstruction(t *testing.T) {
	section := identitySection()
	section.RetryInstruction = ""

	m := &mockModel{}
	m.On("Generate", mock.Anything, phase("extract/identity")).Return(`{}`, nil).Once()
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return strings.Contains(req.Prompt, genericRetryInstruction)
	})).Return(`{"invoice_no":"1","invoice_date":"01.01.2025"}`, nil).Once()

	fields, err := NewClient(m, Config{}).Extract(context.Background(), "text", section, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", fields["invoice_no"])
	m.AssertExpectations(t)
}

func TestClient_Extract_MalformedThenRecovered(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, phase("extract/identity")).Return("I could not find it.", nil).Once()
	m.On("Generate", mock.Anything, phase("extract/identity/retry")).
		Return(`{"invoice_no":"9","invoice_date":"02.02.2025"}`, nil).Once()

	fields, err := NewClient(m, Config{}).Extract(context.Background(), "text", identitySection(), "x")
	require.NoError(t, err)
	assert.Equal(t, "9", fields["invoice_no"])
}

func TestClient_Extract_MalformedTwice(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.Anything).Return(`{"a": "b, "c":1}`, nil).Twice()

	fields, err := NewClient(m, Config{}).Extract(context.Background(), "text", identitySection(), "x")
	assert.Nil(t, fields)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestClient_Extract_NoCriticalFieldsNoRetry(t *testing.T) {
	section := model.Section{
		Name:   "logistics",
		Fields: []model.FieldSchema{{Name: "port_of_loading", Type: model.FieldString, Tier: model.TierInformative}},
	}
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("boom")).Once()

	_, attempts, err := NewClient(m, Config{}).extract(context.Background(), "text", section, "x")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestClient_Extract_Timeout(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	c := NewClient(m, Config{Timeout: 20 * time.Millisecond})
	_, err := c.Extract(context.Background(), "text", identitySection(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrModelTimeout))
	assert.False(t, errors.Is(err, llm.ErrModelUnavailable))
}

func TestClient_Extract_UnavailablePassesThrough(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.Anything).Return("", llm.ErrModelUnavailable)

	_, err := NewClient(m, Config{}).Extract(context.Background(), "text", identitySection(), "x")
	assert.True(t, errors.Is(err, llm.ErrModelUnavailable))
}

func TestClient_PromptTextIsBounded(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return strings.Contains(req.Prompt, "ééééé") && !strings.Contains(req.Prompt, "éééééé")
	})).Return(`{"port_of_loading":"x"}`, nil).Once()

	section := model.Section{Name: "logistics", Fields: []model.FieldSchema{{Name: "port_of_loading", Type: model.FieldString}}}
	_, err := NewClient(m, Config{MaxTextChars: 5}).Extract(context.Background(), strings.Repeat("é", 50), section, "x")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abcdef", 3))
	assert.Equal(t, "ab", TruncateRunes("ab", 3))
	assert.Equal(t, "日本", TruncateRunes("日本語", 2))
	assert.Equal(t, "abc", TruncateRunes("abc", 0))
}
