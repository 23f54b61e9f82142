// Package verify reconciles fields across two documents of one shipment.
// The engine is generic: the checks for each document pair are data, and the
// comparators they name are pure functions.
package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/model"
)

// StatusFor maps passed and total check counts to a status: all passed is
// verified, at least 80% verified with warnings, at least 60% a partial
// match, less is failed, and no comparable checks is no_data.
func StatusFor(passed, total int) model.Status {
	switch {
	case total <= 0:
		return model.StatusNoData
	case passed >= total:
		return model.StatusVerified
	case 5*passed >= 4*total:
		return model.StatusVerifiedWithWarnings
	case 5*passed >= 3*total:
		return model.StatusPartialMatch
	default:
		return model.StatusFailed
	}
}

// Engine runs check lists. It holds no pair-specific logic.
type Engine struct {
	lists       map[string]CheckList
	order       []string
	comparators map[string]Comparator
	now         func() time.Time
}

// NewEngine builds an engine over lists using the built-in comparators.
func NewEngine(lists []CheckList) *Engine {
	e := &Engine{
		lists:       make(map[string]CheckList, len(lists)),
		comparators: Comparators(),
		now:         time.Now,
	}
	for _, cl := range lists {
		e.lists[cl.Pair] = cl
		e.order = append(e.order, cl.Pair)
	}
	return e
}

// Default returns an engine over the embedded check lists.
func Default() (*Engine, error) {
	lists, err := DefaultCheckLists()
	if err != nil {
		return nil, err
	}
	return NewEngine(lists), nil
}

// CheckLists returns the configured check lists in load order.
func (e *Engine) CheckLists() []CheckList {
	out := make([]CheckList, 0, len(e.order))
	for _, p := range e.order {
		out = append(out, e.lists[p])
	}
	return out
}

// PairFor finds the check list for two document types in either order.
// swapped is true when b is the reference type.
func (e *Engine) PairFor(a, b model.DocType) (cl CheckList, swapped bool, ok bool) {
	for _, p := range e.order {
		cl := e.lists[p]
		switch {
		case cl.Reference == a && cl.Dependent == b:
			return cl, false, true
		case cl.Reference == b && cl.Dependent == a:
			return cl, true, true
		}
	}
	return CheckList{}, false, false
}

// Verify runs the named pair's checks over reference and dependent. It is
// pure apart from the result ID and timestamp. Checks whose inputs are
// missing are skipped: they add a note but do not count toward the total.
func (e *Engine) Verify(pairName string, reference, dependent *model.Record) model.VerificationResult {
	res := model.VerificationResult{
		ID:        uuid.New().String(),
		Pair:      pairName,
		Checks:    []model.Check{},
		Compared:  []model.ComparedField{},
		CreatedAt: e.now().UTC(),
	}
	if reference != nil {
		res.ReferenceID = reference.ID()
		res.ShipmentID = reference.ShipmentID()
	}
	if dependent != nil {
		res.DependentID = dependent.ID()
		if res.ShipmentID == "" {
			res.ShipmentID = dependent.ShipmentID()
		}
	}

	cl, ok := e.lists[pairName]
	var notes []string
	switch {
	case !ok:
		notes = append(notes, fmt.Sprintf("no check list for pair %q", pairName))
	case reference == nil || dependent == nil:
		notes = append(notes, "both documents are required for verification")
	default:
		for _, spec := range cl.Checks {
			outcome, comparable := e.comparators[spec.Comparator](Inputs{
				Spec:      spec,
				Reference: reference,
				Dependent: dependent,
			})
			if !comparable {
				note := fmt.Sprintf("%s: skipped (missing %s or %s)", spec.Name, spec.Left, spec.Right)
				if outcome.Note != "" {
					note += "; " + outcome.Note
				}
				notes = append(notes, note)
				continue
			}
			res.Checks = append(res.Checks, model.Check{Name: spec.Name, Passed: outcome.Passed, Note: outcome.Note})
			res.Compared = append(res.Compared, model.ComparedField{
				Check:     spec.Name,
				Reference: outcome.Reference,
				Dependent: outcome.Dependent,
			})
			notes = append(notes, fmt.Sprintf("%s: %s", spec.Name, outcome.Note))
			if outcome.Passed {
				res.PassedChecks++
			}
		}
	}

	res.TotalChecks = len(res.Checks)
	res.Status = StatusFor(res.PassedChecks, res.TotalChecks)
	res.Verified = res.Status == model.StatusVerified || res.Status == model.StatusVerifiedWithWarnings
	res.Notes = strings.Join(notes, "\n")

	zap.L().Info("verify: verdict",
		zap.String("pair", pairName),
		zap.String("status", string(res.Status)),
		zap.Int("passed", res.PassedChecks),
		zap.Int("total", res.TotalChecks),
	)
	return res
}

// NoData is the result for a verification that had nothing to compare.
func (e *Engine) NoData(pairName, shipmentID, note string) model.VerificationResult {
	return model.VerificationResult{
		ID:         uuid.New().String(),
		Pair:       pairName,
		ShipmentID: shipmentID,
		Status:     model.StatusNoData,
		Checks:     []model.Check{},
		Compared:   []model.ComparedField{},
		Notes:      note,
		CreatedAt:  e.now().UTC(),
	}
}
