package engine

// ExecStatus records why a run ended.
type ExecStatus int32

const (
	Unset ExecStatus = iota
	TaskDepletion
	Timeout
	TaskBudgetExceeded
	TermFunction
	ForcedAbort
	Exception
)

func (s ExecStatus) String() string {
	switch s {
	case Unset:
		return "unset"
	case TaskDepletion:
		return "task_depletion"
	case Timeout:
		return "timeout"
	case TaskBudgetExceeded:
		return "task_budget_exceeded"
	case TermFunction:
		return "term_function"
	case ForcedAbort:
		return "forced_abort"
	case Exception:
		return "exception"
	default:
		return "unknown"
	}
}
