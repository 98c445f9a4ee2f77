package product

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

func TestNotFoundError(t *testing.T) {
	var err error = &NotFoundError{Code: "XX1"}

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "product XX1 not found", err.Error())

	var nf *NotFoundError
	assert.True(t, errors.As(errors.Wrap(err, "scan"), &nf))
	assert.Equal(t, "XX1", nf.Code)
}

func TestProduct_EqualByCode(t *testing.T) {
	a := Product{Code: "GR1", Name: "Green Tea", Price: money.MustParse("3.11", "GBP")}
	b := Product{Code: "GR1", Name: "Renamed", Price: money.MustParse("9.99", "USD")}
	c := Product{Code: "SR1", Name: "Green Tea", Price: money.MustParse("3.11", "GBP")}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
