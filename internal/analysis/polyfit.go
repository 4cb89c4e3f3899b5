package analysis

import (
	"gonum.org/v1/gonum/mat"

	"epiclim/internal/errors"
)

// polyfit fits a least-squares polynomial of the given degree to (x, y) and
// returns the coefficients (constant term first) together with the sum of
// squared residuals.
func polyfit(x, y []float64, degree int) ([]float64, float64, error) {
	n := len(x)
	if n == 0 || len(y) != n {
		return nil, 0, errors.InvalidInput("polynomial fit requires matching non-empty samples")
	}
	cols := degree + 1
	if n < cols {
		return nil, 0, errors.UnsupportedConfig(
			"polynomial fit requires at least degree+1 time samples")
	}
	a := mat.NewDense(n, cols, nil)
	b := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		v := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, v)
			v *= x[i]
		}
		b.Set(i, 0, y[i])
	}
	var qr mat.QR
	qr.Factorize(a)
	coef := mat.NewDense(cols, 1, nil)
	if err := qr.SolveTo(coef, false, b); err != nil {
		return nil, 0, errors.Wrap(err, "polynomial least-squares solve failed")
	}
	coeffs := make([]float64, cols)
	for j := 0; j < cols; j++ {
		coeffs[j] = coef.At(j, 0)
	}
	rss := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - polyval(coeffs, x[i])
		rss += r * r
	}
	return coeffs, rss, nil
}

// polyval evaluates a polynomial with coefficients in ascending order.
func polyval(coeffs []float64, x float64) float64 {
	v := 0.0
	for j := len(coeffs) - 1; j >= 0; j-- {
		v = v*x + coeffs[j]
	}
	return v
}
