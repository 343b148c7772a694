package lifecycle

// Result is the outcome vocabulary exposed on result labels.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
	ResultPending Result = "pending"
)

// Buildbot result codes as carried in the "results" field of finished entities.
const (
	CodeSuccess   = 0
	CodeWarnings  = 1
	CodeFailure   = 2
	CodeSkipped   = 3
	CodeException = 4
	CodeRetry     = 5
	CodeCancelled = 6
)

// ResultFromCode maps a Buildbot result code to a Result. A nil or unknown
// code is an error.
func ResultFromCode(code *int) Result {
	if code == nil {
		return ResultError
	}
	switch *code {
	case CodeSuccess, CodeWarnings, CodeSkipped:
		return ResultSuccess
	case CodeFailure:
		return ResultFailure
	case CodeRetry:
		return ResultPending
	default:
		return ResultError
	}
}

// Succeeded reports whether the success gauge should read 1.
func (r Result) Succeeded() bool { return r == ResultSuccess }

func (r Result) String() string { return string(r) }
