package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/workforce-engine/generic"
)

// Rates are the statutory parameters. The defaults are illustrative.
type Rates struct {
	PF           decimal.Decimal // fraction of base salary, no wage ceiling
	ESI          decimal.Decimal // fraction of base salary
	ESIThreshold decimal.Decimal // ESI applies when base <= threshold
}

func DefaultRates() Rates {
	return Rates{
		PF:           decimal.RequireFromString("0.12"),
		ESI:          decimal.RequireFromString("0.0325"),
		ESIThreshold: decimal.NewFromInt(21000),
	}
}

// ParseRates builds Rates from decimal strings; empty strings keep the default.
func ParseRates(pf, esi, threshold string) (Rates, error) {
	r := DefaultRates()
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"pf", pf, &r.PF},
		{"esi", esi, &r.ESI},
		{"esiThreshold", threshold, &r.ESIThreshold},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Rates{}, generic.Invalid(f.name, "not a number: %q", f.raw)
		}
		if d.IsNegative() {
			return Rates{}, generic.Invalid(f.name, "must not be negative")
		}
		*f.dst = d
	}
	return r, nil
}

// Statutory computes PF and ESI. ESI is all-or-nothing at the threshold,
// not prorated: base == threshold still pays ESI. TDS is always zero here.
func (r Rates) Statutory(base decimal.Decimal) Compliance {
	c := Compliance{
		PF:  base.Mul(r.PF),
		ESI: decimal.Zero,
		TDS: decimal.Zero,
	}
	if base.LessThanOrEqual(r.ESIThreshold) {
		c.ESI = base.Mul(r.ESI)
	}
	return c
}

// NetSalary = base + overtimePay + Σallowances − Σdeductions − pf − esi.
func NetSalary(rec Record) decimal.Decimal {
	net := rec.BaseSalary.Add(rec.OvertimePay)
	for _, a := range rec.Allowances {
		net = net.Add(a.Amount)
	}
	for _, d := range rec.Deductions {
		net = net.Sub(d.Amount)
	}
	return net.Sub(rec.Compliance.PF).Sub(rec.Compliance.ESI)
}
