package command_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/command"
)

func TestNewFailureReport_NilIsZeroValue(t *testing.T) {
	report := command.NewFailureReport(nil)
	assert.Empty(t, report.Message)
	assert.Empty(t, report.Chain)
}

func TestNewFailureReport_SingleErrorChain(t *testing.T) {
	root := errors.New("connection refused")
	wrapped := fmt.Errorf("dial postgres: %w", root)
	top := fmt.Errorf("begin transaction: %w", wrapped)

	report := command.NewFailureReport(top)

	require.Len(t, report.Chain, 3)
	assert.Equal(t, top.Error(), report.Message)
	assert.Contains(t, report.Chain[2], "connection refused")
}

func TestNewFailureReport_MultiErrorChain(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, errors.New("validation failed: empty name"))
	merr = multierror.Append(merr, errors.New("validation failed: negative amount"))

	report := command.NewFailureReport(merr)

	assert.GreaterOrEqual(t, len(report.Chain), 2)
}

func TestNewFailureReportWithDepth_TruncatesAtLimit(t *testing.T) {
	err := errors.New("level0")
	for i := 1; i < 20; i++ {
		err = fmt.Errorf("level%d: %w", i, err)
	}

	report := command.NewFailureReportWithDepth(err, 5)

	assert.Len(t, report.Chain, 5)
}
