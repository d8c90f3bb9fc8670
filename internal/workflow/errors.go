package workflow

import (
	"fmt"

	"etcapply/pkg/errorutil"
)

// ErrPrerequisite 前置标识缺失，属于编程错误
var ErrPrerequisite = errorutil.New(errorutil.KindProgrammer, "prerequisite identifier not set")

// StepError 带步骤序号的失败
type StepError struct {
	Step    int
	Name    string
	Percent int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%d. %s failed: %v", e.Step, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Reported 失败信息已经写入日志和进度
func (e *StepError) Reported() bool { return true }

func prerequisite(name string) error {
	return fmt.Errorf("%w: %s", ErrPrerequisite, name)
}

func programmerError(format string, args ...interface{}) error {
	return errorutil.New(errorutil.KindProgrammer, fmt.Sprintf(format, args...))
}
