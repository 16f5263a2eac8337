package ml

// PolynomialFeatures expands a row into every monomial of total degree
// 1..Degree (no bias column), in graded lexicographic order.
type PolynomialFeatures struct {
	Degree int

	terms  [][]int
	width  int
	fitted bool
}

func NewPolynomialFeatures(degree int) *PolynomialFeatures {
	return &PolynomialFeatures{Degree: degree}
}

func (p *PolynomialFeatures) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	p.width = len(X[0])
	p.terms = p.terms[:0]
	p.fitted = true
	for d := 1; d <= max(1, p.Degree); d++ {
		p.combinations(nil, 0, d)
	}
	return nil
}

// combinations enumerates index multisets of size d with non-decreasing indices.
func (p *PolynomialFeatures) combinations(prefix []int, start, d int) {
	if d == 0 {
		p.terms = append(p.terms, append([]int(nil), prefix...))
		return
	}
	for j := start; j < p.width; j++ {
		p.combinations(append(prefix, j), j, d-1)
	}
}

func (p *PolynomialFeatures) Transform(x []float64) ([]float64, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	if len(x) != p.width {
		return nil, ErrShapeMismatch
	}
	out := make([]float64, len(p.terms))
	for i, term := range p.terms {
		v := 1.0
		for _, j := range term {
			v *= x[j]
		}
		out[i] = v
	}
	return out, nil
}

// OutputWidth is the number of generated columns after Fit.
func (p *PolynomialFeatures) OutputWidth() int {
	return len(p.terms)
}
