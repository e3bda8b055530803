package timeseries

// ReturnsFromPrices derives a simple-return matrix from a price
// matrix. Row 0 is all missing; a return is missing whenever either
// endpoint price is missing or non-positive.
func ReturnsFromPrices(prices *Matrix) *Matrix {
	dates := prices.Dates()
	symbols := prices.Symbols()

	rows := make([][]float64, prices.Rows())
	for i := range rows {
		rows[i] = make([]float64, len(symbols))
		for j := range symbols {
			if i == 0 {
				rows[i][j] = Missing()
				continue
			}
			prev := prices.Value(i-1, j)
			curr := prices.Value(i, j)
			if IsMissing(prev) || IsMissing(curr) || prev <= 0 || curr <= 0 {
				rows[i][j] = Missing()
				continue
			}
			rows[i][j] = curr/prev - 1.0
		}
	}

	// Inputs came from a valid matrix; reconstruction cannot fail
	m, _ := New(dates, symbols, rows)
	return m
}
