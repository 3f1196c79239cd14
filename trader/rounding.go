package trader

import "github.com/shopspring/decimal"

// Round 按显示精度四舍五入。内部计算一律保留全精度，只在输出边界调用。
func Round(v float64, places int32) float64 {
	if !finite(v) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func round2(v float64) float64 { return Round(v, 2) }
