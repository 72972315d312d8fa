package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RoundToStep 通过字符串操作确保精度，避免浮点数计算误差
// The value is floored to the step's decimal places, matching how the
// exchange truncates prices to tick size and quantities to lot size.
func RoundToStep(value float64, step string) float64 {
	if step == "" {
		return value
	}
	if !strings.Contains(step, ".") {
		return math.Floor(value)
	}
	decimalPlaces := len(step) - strings.Index(step, ".") - 1

	factor := math.Pow(10, float64(decimalPlaces))
	adjustedValue := math.Floor(value*factor) / factor

	finalValue, _ := strconv.ParseFloat(fmt.Sprintf("%.*f", decimalPlaces, adjustedValue), 64)
	return finalValue
}
