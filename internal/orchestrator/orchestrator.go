// Package orchestrator fans one message out to the configured classifiers.
//
// Work runs as a two-stage graph. Stage one covers every non-sentiment
// classifier over its units (the whole message or each segment). Stage two
// starts only after stage one joined and runs sentiment on the units the
// review classifiers marked as reviews.
package orchestrator

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"chatguard/internal/classifier"
	"chatguard/internal/logger"
	"chatguard/pkg/models"
	"chatguard/pkg/tracing"
)

// messageUnit marks a task that targets the whole message rather than a
// segment index.
const messageUnit = -1

// Verdicts holds every verdict collected for one message. Segments is index
// aligned with the segment slice passed to Run.
type Verdicts struct {
	Segments []map[string]models.ClassifierVerdict
	Message  map[string]models.ClassifierVerdict
}

type task struct {
	unit   int
	text   string
	client classifier.Client
}

type outcome struct {
	unit    int
	verdict models.ClassifierVerdict
}

type Orchestrator struct {
	clients []classifier.Client
	logger  logger.Logger
}

func New(clients []classifier.Client, log logger.Logger) *Orchestrator {
	return &Orchestrator{clients: clients, logger: log}
}

func (o *Orchestrator) Descriptors() []classifier.Descriptor {
	descs := make([]classifier.Descriptor, 0, len(o.clients))
	for _, c := range o.clients {
		descs = append(descs, c.Descriptor())
	}
	return descs
}

// Run never fails. Calls that error or exceed their descriptor timeout are
// recorded as unavailable and do not affect sibling calls.
func (o *Orchestrator) Run(ctx context.Context, text string, segments []string) Verdicts {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.run")
	defer span.End()

	v := Verdicts{
		Segments: make([]map[string]models.ClassifierVerdict, len(segments)),
		Message:  make(map[string]models.ClassifierVerdict),
	}
	for i := range v.Segments {
		v.Segments[i] = make(map[string]models.ClassifierVerdict)
	}

	if strings.TrimSpace(text) == "" {
		return v
	}

	var stage1, sentiment []classifier.Client
	for _, c := range o.clients {
		if c.Descriptor().Kind == classifier.KindSentiment {
			sentiment = append(sentiment, c)
			continue
		}
		stage1 = append(stage1, c)
	}

	first := o.plan(stage1, text, segments, func(int) bool { return true })
	o.execute(ctx, first, &v)

	if len(sentiment) > 0 {
		gate := reviewGate(o.Descriptors(), v)
		second := o.plan(sentiment, text, segments, gate)
		o.execute(ctx, second, &v)
	}

	span.SetAttributes(
		attribute.Int("segments", len(segments)),
		attribute.Int("calls", len(first)),
	)
	return v
}

func (o *Orchestrator) plan(clients []classifier.Client, text string, segments []string, allow func(unit int) bool) []task {
	var tasks []task
	for _, c := range clients {
		switch c.Descriptor().Scope {
		case classifier.ScopeSegment:
			for i, seg := range segments {
				if allow(i) {
					tasks = append(tasks, task{unit: i, text: seg, client: c})
				}
			}
		default:
			if allow(messageUnit) {
				tasks = append(tasks, task{unit: messageUnit, text: text, client: c})
			}
		}
	}
	return tasks
}

func (o *Orchestrator) execute(ctx context.Context, tasks []task, v *Verdicts) {
	results := make([]outcome, len(tasks))

	// tasks never return an error, so the group is only a join barrier
	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = outcome{unit: t.unit, verdict: o.call(ctx, t)}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.unit == messageUnit {
			v.Message[r.verdict.Classifier] = r.verdict
			continue
		}
		v.Segments[r.unit][r.verdict.Classifier] = r.verdict
	}
}

// call bounds one classifier call by its own deadline. A client that ignores
// ctx is abandoned when the deadline passes; its late answer is dropped.
func (o *Orchestrator) call(ctx context.Context, t task) models.ClassifierVerdict {
	desc := t.client.Descriptor()
	callCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	done := make(chan models.ClassifierVerdict, 1)
	go func() {
		verdict, err := t.client.Classify(callCtx, t.text)
		if err != nil {
			o.logger.WarnwCtx(ctx, "Classifier call failed",
				"classifier", desc.Name,
				"error", err,
			)
			verdict = classifier.DefaultVerdict(desc.Name, models.VerdictUnavailable)
		}
		verdict.Classifier = desc.Name
		done <- verdict
	}()

	select {
	case verdict := <-done:
		return verdict
	case <-callCtx.Done():
		o.logger.WarnwCtx(ctx, "Classifier call timed out",
			"classifier", desc.Name,
			"timeout", desc.Timeout,
		)
		return classifier.DefaultVerdict(desc.Name, models.VerdictUnavailable)
	}
}

// reviewGate decides which units sentiment may run on. A segment counts as a
// review when a segment-scoped review classifier flagged it, or, without
// one, when the message as a whole was flagged.
func reviewGate(descs []classifier.Descriptor, v Verdicts) func(unit int) bool {
	var segmentReviewers, messageReviewers []string
	for _, d := range descs {
		if d.Kind != classifier.KindReview {
			continue
		}
		if d.Scope == classifier.ScopeSegment {
			segmentReviewers = append(segmentReviewers, d.Name)
		} else {
			messageReviewers = append(messageReviewers, d.Name)
		}
	}

	messageReview := anyPositive(v.Message, messageReviewers)
	segmentReview := make([]bool, len(v.Segments))
	anySegment := false
	for i, verdicts := range v.Segments {
		segmentReview[i] = anyPositive(verdicts, segmentReviewers)
		anySegment = anySegment || segmentReview[i]
	}

	return func(unit int) bool {
		if unit == messageUnit {
			return messageReview || anySegment
		}
		if len(segmentReviewers) > 0 {
			return segmentReview[unit]
		}
		return messageReview
	}
}

func anyPositive(verdicts map[string]models.ClassifierVerdict, names []string) bool {
	for _, name := range names {
		if v, ok := verdicts[name]; ok && v.Positive && v.Status == models.VerdictOK {
			return true
		}
	}
	return false
}
