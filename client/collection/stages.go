package collection

import (
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
)

// Stage is one of SelectStudent, SelectPlan, SelectHeads or Confirm. Each carries only the data
// valid at that point of the wizard.
type Stage interface {
	Name() string
	isStage()
}

type SelectStudent struct{}

type SelectPlan struct {
	Student student.Student
	Plans   []fee.Plan
}

type SelectHeads struct {
	SelectPlan
	Plan     fee.Plan
	Heads    []fee.HeadStatus
	Fine     fee.Fine
	Selected fee.Selection
}

type Confirm struct {
	SelectHeads
	Breakdown fee.Breakdown
}

func (SelectStudent) Name() string { return "select student" }
func (SelectPlan) Name() string    { return "select plan" }
func (SelectHeads) Name() string   { return "select heads" }
func (Confirm) Name() string       { return "confirm" }

func (SelectStudent) isStage() {}
func (SelectPlan) isStage()    {}
func (SelectHeads) isStage()   {}
func (Confirm) isStage()       {}

func (sh SelectHeads) head(id string) (fee.HeadStatus, bool) {
	for _, hs := range sh.Heads {
		if hs.ID == id {
			return hs, true
		}
	}
	return fee.HeadStatus{}, false
}

// Breakdown is recomputed from the plan, the selection and the fine on every call.
func (sh SelectHeads) Breakdown() fee.Breakdown {
	return fee.ComputeBreakdown(sh.Plan, sh.Selected, sh.Fine.Amount)
}
