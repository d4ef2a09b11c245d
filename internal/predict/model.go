package predict

import (
	"math"
	"math/rand"
	"sort"
)

// Sample is one cell of the district × weekday × hour grid.
type Sample struct {
	District int // index into Model.Districts
	Weekday  int // 0 = Monday .. 6 = Sunday
	Hour     int
	Trend    float64
	Label    bool
}

// Model is a logistic regression over one-hot district, weekday and hour
// indicators plus the district trend.
type Model struct {
	Districts []string    `json:"districts"`
	Bias      float64     `json:"bias"`
	District  []float64   `json:"district"`
	Weekday   [7]float64  `json:"weekday"`
	Hour      [24]float64 `json:"hour"`
	Trend     float64     `json:"trend"`
}

// FitOptions controls batch gradient descent.
type FitOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

func (m *Model) z(s Sample) float64 {
	return m.Bias + m.District[s.District] + m.Weekday[s.Weekday] + m.Hour[s.Hour] + m.Trend*s.Trend
}

// Prob is the predicted probability that the cell has at least one crime.
func (m *Model) Prob(s Sample) float64 { return sigmoid(m.z(s)) }

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// ClassWeights returns balanced weights n / (classes * n_class) for the
// negative and positive classes, where classes counts the labels present. A
// missing class gets weight 0.
func ClassWeights(samples []Sample) (neg, pos float64) {
	var nPos, nNeg int
	for _, s := range samples {
		if s.Label {
			nPos++
		} else {
			nNeg++
		}
	}
	classes := 0
	if nNeg > 0 {
		classes++
	}
	if nPos > 0 {
		classes++
	}
	if classes == 0 {
		return 0, 0
	}
	n := float64(len(samples))
	if nNeg > 0 {
		neg = n / (float64(classes) * float64(nNeg))
	}
	if nPos > 0 {
		pos = n / (float64(classes) * float64(nPos))
	}
	return neg, pos
}

// Fit trains a model on samples with balanced class weights.
func Fit(districts []string, samples []Sample, opts FitOptions) *Model {
	m := &Model{
		Districts: districts,
		District:  make([]float64, len(districts)),
	}
	if len(samples) == 0 {
		return m
	}
	wNeg, wPos := ClassWeights(samples)

	var totalW float64
	for _, s := range samples {
		if s.Label {
			totalW += wPos
		} else {
			totalW += wNeg
		}
	}

	gDistrict := make([]float64, len(districts))
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		var gBias, gTrend float64
		var gWeekday [7]float64
		var gHour [24]float64
		for i := range gDistrict {
			gDistrict[i] = 0
		}

		for _, s := range samples {
			y, w := 0.0, wNeg
			if s.Label {
				y, w = 1.0, wPos
			}
			d := w * (m.Prob(s) - y)
			gBias += d
			gDistrict[s.District] += d
			gWeekday[s.Weekday] += d
			gHour[s.Hour] += d
			gTrend += d * s.Trend
		}

		step := opts.LearningRate / totalW
		m.Bias -= step * gBias
		m.Trend -= step*gTrend + opts.LearningRate*opts.L2*m.Trend
		for i := range m.District {
			m.District[i] -= step*gDistrict[i] + opts.LearningRate*opts.L2*m.District[i]
		}
		for i := range m.Weekday {
			m.Weekday[i] -= step*gWeekday[i] + opts.LearningRate*opts.L2*m.Weekday[i]
		}
		for i := range m.Hour {
			m.Hour[i] -= step*gHour[i] + opts.LearningRate*opts.L2*m.Hour[i]
		}
	}
	return m
}

// Accuracy is the share of samples classified correctly at threshold 0.5.
func (m *Model) Accuracy(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for _, s := range samples {
		if (m.Prob(s) >= 0.5) == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

// StratifiedSplit shuffles each class with seed and moves the first holdout
// share of it into the test set.
func StratifiedSplit(samples []Sample, holdout float64, seed int64) (train, test []Sample) {
	var pos, neg []Sample
	for _, s := range samples {
		if s.Label {
			pos = append(pos, s)
		} else {
			neg = append(neg, s)
		}
	}
	r := rand.New(rand.NewSource(seed))
	for _, class := range [][]Sample{neg, pos} {
		r.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		k := int(math.Round(holdout * float64(len(class))))
		if k >= len(class) {
			k = len(class) - 1
		}
		if k < 0 {
			k = 0
		}
		test = append(test, class[:k]...)
		train = append(train, class[k:]...)
	}
	// Stable order for gradient accumulation.
	sort.SliceStable(train, func(i, j int) bool { return sampleLess(train[i], train[j]) })
	sort.SliceStable(test, func(i, j int) bool { return sampleLess(test[i], test[j]) })
	return train, test
}

func sampleLess(a, b Sample) bool {
	if a.District != b.District {
		return a.District < b.District
	}
	if a.Weekday != b.Weekday {
		return a.Weekday < b.Weekday
	}
	return a.Hour < b.Hour
}
