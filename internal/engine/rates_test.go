package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHourlyRate(t *testing.T) {
	p, c, o := 120.0, 90.0, 60.0
	assert.Equal(t, 120.0, resolveHourlyRate(&p, &c, &o))
	assert.Equal(t, 90.0, resolveHourlyRate(nil, &c, &o))
	assert.Equal(t, 60.0, resolveHourlyRate(nil, nil, &o))
	assert.Equal(t, float64(fallbackHourlyRate), resolveHourlyRate(nil, nil, nil))
}

func TestComputeTotals(t *testing.T) {
	tax, total := computeTotals(75, 10)
	assert.Equal(t, 7.5, tax)
	assert.Equal(t, 82.5, total)

	tax, total = computeTotals(100, 0)
	assert.Equal(t, 0.0, tax)
	assert.Equal(t, 100.0, total)
}

func TestNextInvoiceNo(t *testing.T) {
	assert.Equal(t, "INV-001", nextInvoiceNo(""))
	assert.Equal(t, "INV-002", nextInvoiceNo("INV-001"))
	assert.Equal(t, "INV-100", nextInvoiceNo("INV-099"))
	assert.Equal(t, "INV-1000", nextInvoiceNo("INV-999"))
	assert.Equal(t, "INV-001", nextInvoiceNo("garbage"))
}
