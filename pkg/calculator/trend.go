package calculator

import (
	"fmt"
	"math"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// Trend 对一条时间序列按期序做最小二乘回归并给出趋势统计量。
// flatSlopeRatio：|slope| 低于序列均值幅度的该比例时判为 flat。
func Trend(series []float64, flatSlopeRatio float64) (model.TrendResult, error) {
	n := len(series)
	if n < 2 {
		return model.TrendResult{}, fmt.Errorf("trend analysis needs at least 2 points, got %d", n)
	}
	if flatSlopeRatio <= 0 {
		flatSlopeRatio = 0.01
	}

	slope, intercept, r := linregress(series)

	meanMag := 0.0
	for _, v := range series {
		meanMag += math.Abs(v)
	}
	meanMag /= float64(n)

	direction := model.TrendFlat
	if math.Abs(slope) >= flatSlopeRatio*meanMag && meanMag > 0 {
		if slope > 0 {
			direction = model.TrendIncreasing
		} else {
			direction = model.TrendDecreasing
		}
	}

	return model.TrendResult{
		Direction:          direction,
		Strength:           math.Abs(r),
		Slope:              slope,
		RSquared:           r * r,
		PValue:             slopePValue(r, n),
		ForecastNextPeriod: slope*float64(n) + intercept,
		Volatility:         volatility(series),
	}, nil
}

// linregress y ~ a + b*x，x 为期序 0..n-1，返回 slope, intercept, r
func linregress(y []float64) (slope, intercept, r float64) {
	n := float64(len(y))
	var sx, sy, sxx, sxy, syy float64
	for i, v := range y {
		x := float64(i)
		sx += x
		sy += v
		sxx += x * x
		sxy += x * v
		syy += v * v
	}

	dx := n*sxx - sx*sx
	if dx == 0 {
		return 0, sy / n, 0
	}
	slope = (n*sxy - sx*sy) / dx
	intercept = (sy - slope*sx) / n

	dy := n*syy - sy*sy
	if dy <= 0 {
		// 序列为常数，相关系数无意义，取 0
		return slope, intercept, 0
	}
	r = (n*sxy - sx*sy) / math.Sqrt(dx*dy)
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return slope, intercept, r
}

// volatility 环比变化率的变异系数。均值接近零时退化为变化率的标准差。
func volatility(series []float64) float64 {
	var changes []float64
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		if prev == 0 {
			continue
		}
		changes = append(changes, (series[i]-prev)/math.Abs(prev))
	}
	if len(changes) == 0 {
		return 0
	}

	var mean float64
	for _, c := range changes {
		mean += c
	}
	mean /= float64(len(changes))

	var ss float64
	for _, c := range changes {
		d := c - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(changes)))

	if math.Abs(mean) < 1e-12 {
		return std
	}
	return math.Abs(std / mean)
}

// slopePValue 斜率 t 检验的双侧 p 值，自由度 n-2
func slopePValue(r float64, n int) float64 {
	df := float64(n - 2)
	if df <= 0 {
		return 1
	}
	rr := r * r
	if rr >= 1 {
		return 0
	}
	t := math.Abs(r) * math.Sqrt(df/(1-rr))
	// 双侧 p = I_{df/(df+t²)}(df/2, 1/2)
	p := regIncBeta(df/2, 0.5, df/(df+t*t))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// regIncBeta 正则化不完全贝塔函数 I_x(a,b)，Lentz 连分式
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lbeta := lgamma(a+b) - lgamma(a) - lgamma(b)
	front := math.Exp(math.Log(x)*a+math.Log(1-x)*b+lbeta) / a

	if x > (a+1)/(a+b+2) {
		// 利用对称性提升收敛速度
		return 1 - regIncBeta(b, a, 1-x)
	}

	const eps = 1e-12
	const maxIter = 200
	f, c, d := 1.0, 1.0, 0.0
	for i := 0; i <= maxIter; i++ {
		m := i / 2
		var numerator float64
		switch {
		case i == 0:
			numerator = 1.0
		case i%2 == 0:
			numerator = float64(m) * (b - float64(m)) * x / ((a + float64(2*m) - 1) * (a + float64(2*m)))
		default:
			numerator = -(a + float64(m)) * (a + b + float64(m)) * x / ((a + float64(2*m)) * (a + float64(2*m) + 1))
		}

		d = 1 + numerator*d
		if math.Abs(d) < 1e-30 {
			d = 1e-30
		}
		d = 1 / d
		c = 1 + numerator/c
		if math.Abs(c) < 1e-30 {
			c = 1e-30
		}
		cd := c * d
		f *= cd
		if math.Abs(1-cd) < eps {
			break
		}
	}
	return front * (f - 1)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
