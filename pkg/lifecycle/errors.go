package lifecycle

import "github.com/Abraxas-365/profilejobs/pkg/errx"

var lifecycleErrors = errx.NewRegistry("LIFECYCLE")

var (
	ErrStart           = lifecycleErrors.Register("START", errx.TypeInternal, "Runner failed to start")
	ErrFatal           = lifecycleErrors.Register("FATAL", errx.TypeInternal, "Fatal runtime error")
	ErrSupervisedPanic = lifecycleErrors.Register("SUPERVISED_PANIC", errx.TypeInternal, "Supervised goroutine panicked")
	ErrSupervisedExit  = lifecycleErrors.Register("SUPERVISED_EXIT", errx.TypeInternal, "Supervised goroutine failed")
	ErrForced          = lifecycleErrors.Register("FORCED", errx.TypeTimeout, "Shutdown did not complete cleanly")
)
