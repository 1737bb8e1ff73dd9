package discovery

import "context"

type step int

const (
	stepGenerate step = iota
	stepEvaluate
	stepOptimize
	stepDone
)

// cycleDef describes one generate, evaluate and optimize loop. T is the parsed
// form of a generation.
type cycleDef[T any] struct {
	kind     string
	tag      string
	maxIters int
	prompt   func(info string) string
	parse    func(raw string) T
	precheck func(items T) []string
	rubric   func(info, raw string, items T) string
}

type cycleResult[T any] struct {
	Info       string
	Raw        string
	Items      T
	Grade      string
	Notes      []string
	Iterations int
}

// run drives the loop from info. iterations is the number of refinement
// rounds already spent by the caller. A precheck failure grades the
// generation without a gateway call. A failing grade is refined while budget
// remains and is returned as is once it runs out.
func (c cycleDef[T]) run(ctx context.Context, gw Gateway, info string, iterations int) (cycleResult[T], error) {
	res := cycleResult[T]{Info: info, Iterations: iterations}

	for st := stepGenerate; st != stepDone; {
		switch st {
		case stepGenerate:
			raw, err := gw.Generate(ctx, plannerRole, c.prompt(res.Info))
			if err != nil {
				return res, err
			}
			res.Raw = raw
			res.Items = c.parse(raw)
			st = stepEvaluate

		case stepEvaluate:
			ev, err := c.evaluate(ctx, gw, res)
			if err != nil {
				return res, err
			}
			res.Grade, res.Notes = ev.Grade, ev.Notes
			if ev.Passed() || res.Iterations >= c.maxIters {
				st = stepDone
			} else {
				st = stepOptimize
			}

		case stepOptimize:
			res.Iterations++
			res.Info = appendRefinement(res.Info, c.tag, res.Notes)
			st = stepGenerate
		}
	}
	return res, nil
}

func (c cycleDef[T]) evaluate(ctx context.Context, gw Gateway, res cycleResult[T]) (Evaluation, error) {
	if issues := c.precheck(res.Items); len(issues) > 0 {
		return failed(issues...), nil
	}
	reply, err := gw.Generate(ctx, reviewerRole, c.rubric(res.Info, res.Raw, res.Items))
	if err != nil {
		return Evaluation{}, err
	}
	return ParseEvaluation(reply), nil
}
