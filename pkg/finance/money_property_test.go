//go:build property
// +build property

package finance_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
)

// TestAddCommutative verifies a+b == b+a for same-currency amounts.
func TestAddCommutative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("addition is commutative", prop.ForAll(
		func(a, b int64) bool {
			ma := finance.MustNew(a, "INR")
			mb := finance.MustNew(b, "INR")
			ab, err1 := ma.Add(mb)
			ba, err2 := mb.Add(ma)
			if err1 != nil || err2 != nil {
				return false
			}
			return ab.AmountMinor == ba.AmountMinor
		},
		gen.Int64Range(-1_000_000_000, 1_000_000_000),
		gen.Int64Range(-1_000_000_000, 1_000_000_000),
	))

	properties.TestingRun(t)
}

// TestMulQtyMatchesRepeatedAdd verifies price*qty equals qty-fold addition.
func TestMulQtyMatchesRepeatedAdd(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("MulQty equals repeated addition", prop.ForAll(
		func(price int64, qty int64) bool {
			unit := finance.MustNew(price, "INR")
			product, err := unit.MulQty(qty)
			if err != nil {
				return false
			}

			total := finance.MustNew(0, "INR")
			for i := int64(0); i < qty; i++ {
				total, err = total.Add(unit)
				if err != nil {
					return false
				}
			}
			return product.AmountMinor == total.AmountMinor
		},
		gen.Int64Range(1, 10_000_000),
		gen.Int64Range(1, 50),
	))

	properties.TestingRun(t)
}
