package train

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
)

// probEps keeps logarithms of probabilities finite.
const probEps = 1e-7

// Metric scores predictions against gold values. Fn returns a scalar; the
// trainer averages it over batches weighted by batch size.
type Metric struct {
	Name string
	// Loss marks metrics that can be minimized.
	Loss bool
	Fn   func(pred, gold graph.Var) graph.Var
}

// CrossEntropyLoss is the mean negative log-probability of the gold class.
// pred holds distributions over the last axis and gold the class indices.
// For sequence gold ([batch, time, ...]) positions holding 0 are padding and
// do not count.
func CrossEntropyLoss() Metric {
	return Metric{Name: "crossentropy", Loss: true, Fn: func(pred, gold graph.Var) graph.Var {
		return maskedMean(pred.Pick(gold).Clip(probEps, 1).Log().Neg(), gold)
	}}
}

// MSELoss is the mean squared difference between pred and gold.
func MSELoss() Metric {
	return Metric{Name: "mse", Loss: true, Fn: func(pred, gold graph.Var) graph.Var {
		return pred.Sub(gold).Pow(2).MeanAll()
	}}
}

// BinaryCrossEntropyLoss treats pred as independent probabilities of gold
// being 1.
func BinaryCrossEntropyLoss() Metric {
	return Metric{Name: "binarycrossentropy", Loss: true, Fn: func(pred, gold graph.Var) graph.Var {
		p := pred.Clip(probEps, 1-probEps)
		g := gold.Cast(pred.DType())
		ll := g.Mul(p.Log()).Add(g.RSub(1).Mul(p.RSub(1).Log()))
		return ll.Neg().MeanAll()
	}}
}

// AccuracyMetric is the fraction of positions whose most probable class is
// the gold class, with the same padding rule as CrossEntropyLoss.
func AccuracyMetric() Metric {
	return Metric{Name: "accuracy", Fn: func(pred, gold graph.Var) graph.Var {
		n := pred.Dim(-1)
		if n <= 0 {
			panic(&graph.Error{Op: "accuracy", Err: fmt.Errorf("%w: class axis of %v is unknown", graph.ErrShape, pred.Shape())})
		}
		hit := pred.Argmax().OneHot(n).Mul(gold.OneHot(n)).Sum(-1, false)
		return maskedMean(hit, gold)
	}}
}

// maskedMean averages v over the non-padding positions of gold.
func maskedMean(v, gold graph.Var) graph.Var {
	if gold.NDim() < 2 {
		return v.MeanAll()
	}
	m := gold.Mask()
	return v.Mul(m).SumAll().Div(m.SumAll().AddScalar(probEps))
}

// MetricByName returns the metric registered under name.
func MetricByName(name string) (Metric, error) {
	switch name {
	case "crossentropy", "cross_entropy", "ce":
		return CrossEntropyLoss(), nil
	case "mse":
		return MSELoss(), nil
	case "binarycrossentropy", "binary_cross_entropy", "bce":
		return BinaryCrossEntropyLoss(), nil
	case "accuracy", "acc":
		return AccuracyMetric(), nil
	default:
		return Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}
