package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearchd/localsearchd/internal/errors"
)

func TestNewDerivesCategorySeverityRetryable(t *testing.T) {
	err := errors.New(errors.ErrCodeExtractFailed, "boom", nil)
	assert.Equal(t, errors.CategoryExtract, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, "[ERR_201_EXTRACT_FAILED] boom", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	wrapped := errors.Wrap(errors.ErrCodeIndexWriteFailed, cause)
	require.NotNil(t, wrapped)
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.True(t, stderrors.Is(wrapped, wrapped))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(errors.ErrCodeInternal, nil))
}

func TestIsMatchesByCode(t *testing.T) {
	a := errors.New(errors.ErrCodeQueryParse, "bad query", nil)
	b := errors.New(errors.ErrCodeQueryParse, "different message", nil)
	assert.True(t, stderrors.Is(a, b))

	c := errors.New(errors.ErrCodeFilterValidation, "bad filter", nil)
	assert.False(t, stderrors.Is(a, c))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, errors.IsRetryable(errors.ExtractError("/a", nil)))
	assert.False(t, errors.IsRetryable(errors.QueryParseError("unexpected token", 4)))
	assert.False(t, errors.IsRetryable(nil))
	assert.False(t, errors.IsRetryable(stderrors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, errors.IsFatal(errors.New(errors.ErrCodeSchemaUpgradeRequired, "upgrade", nil)))
	assert.False(t, errors.IsFatal(errors.New(errors.ErrCodeQueryParse, "q", nil)))
}

func TestWithDetail(t *testing.T) {
	err := errors.ExtractError("/tmp/x.txt", stderrors.New("truncated"))
	assert.Equal(t, "/tmp/x.txt", err.Details["path"])
}

func TestQueryParseErrorCarriesPosition(t *testing.T) {
	err := errors.QueryParseError("unexpected token", 7)
	assert.Equal(t, "7", err.Details["position"])
	assert.Equal(t, errors.CategoryQuery, err.Category)
}

func TestGetCodeAndCategory(t *testing.T) {
	err := errors.ReconciliationError(stderrors.New("snapshot timeout"))
	assert.Equal(t, errors.ErrCodeReconciliationFailed, errors.GetCode(err))
	assert.Equal(t, errors.CategoryCrawl, errors.GetCategory(err))

	assert.Equal(t, "", errors.GetCode(stderrors.New("plain")))
}
