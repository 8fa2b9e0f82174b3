package training

import (
	"encoding/json"
	"strconv"
)

// ClassMetrics holds precision, recall and F1 for one class or average.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// Report is a classification report. It serializes to the flat layout
// {"0": {...}, "1": {...}, "accuracy": x, "macro avg": {...}, "weighted avg": {...}}.
type Report struct {
	Classes     []int
	PerClass    map[int]ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

// Evaluate compares predictions against ground truth for the given classes.
// Zero denominators yield 0.
func Evaluate(yTrue, yPred []int, classes []int) Report {
	r := Report{Classes: append([]int(nil), classes...), PerClass: make(map[int]ClassMetrics, len(classes))}

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	total := len(yTrue)
	r.Accuracy = ratio(float64(correct), float64(total))

	for _, c := range classes {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yTrue[i] == c && yPred[i] == c:
				tp++
			case yTrue[i] != c && yPred[i] == c:
				fp++
			case yTrue[i] == c && yPred[i] != c:
				fn++
			}
		}
		p := ratio(float64(tp), float64(tp+fp))
		rec := ratio(float64(tp), float64(tp+fn))
		m := ClassMetrics{
			Precision: p,
			Recall:    rec,
			F1:        ratio(2*p*rec, p+rec),
			Support:   tp + fn,
		}
		r.PerClass[c] = m

		r.MacroAvg.Precision += m.Precision
		r.MacroAvg.Recall += m.Recall
		r.MacroAvg.F1 += m.F1
		w := float64(m.Support)
		r.WeightedAvg.Precision += w * m.Precision
		r.WeightedAvg.Recall += w * m.Recall
		r.WeightedAvg.F1 += w * m.F1
	}

	n := float64(len(classes))
	r.MacroAvg.Precision = ratio(r.MacroAvg.Precision, n)
	r.MacroAvg.Recall = ratio(r.MacroAvg.Recall, n)
	r.MacroAvg.F1 = ratio(r.MacroAvg.F1, n)
	r.MacroAvg.Support = total
	r.WeightedAvg.Precision = ratio(r.WeightedAvg.Precision, float64(total))
	r.WeightedAvg.Recall = ratio(r.WeightedAvg.Recall, float64(total))
	r.WeightedAvg.F1 = ratio(r.WeightedAvg.F1, float64(total))
	r.WeightedAvg.Support = total
	return r
}

// Metrics is the document persisted as metrics.json next to each run.
type Metrics struct {
	Accuracy             float64 `json:"accuracy"`
	ClassificationReport Report  `json:"classification_report"`
}

// NewMetrics wraps an evaluation report for persistence.
func NewMetrics(r Report) Metrics {
	return Metrics{Accuracy: r.Accuracy, ClassificationReport: r}
}

// MarshalJSON writes the flat report layout.
func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Classes)+3)
	for _, c := range r.Classes {
		out[strconv.Itoa(c)] = r.PerClass[c]
	}
	out["accuracy"] = r.Accuracy
	out["macro avg"] = r.MacroAvg
	out["weighted avg"] = r.WeightedAvg
	return json.Marshal(out)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
