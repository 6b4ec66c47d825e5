package logging

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// UseLoggingInterface routes fx lifecycle events to the Interface provided
// inside the container. Provision and invocation events are logged at debug.
var UseLoggingInterface fx.Option = fx.WithLogger(
	func(logger Interface) fxevent.Logger {
		return &fxLoggerAdapter{Interface: logger}
	},
)

type fxLoggerAdapter struct{ Interface }

// LogEvent logs an fx event.
func (f fxLoggerAdapter) LogEvent(event fxevent.Event) {
	log := f.Interface.WithField("fx", "event")

	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		infoOrErr("OnStart hook", e.Err, log.WithField("callee", e.FunctionName))
	case *fxevent.OnStopExecuted:
		infoOrErr("OnStop hook", e.Err, log.WithField("callee", e.FunctionName))
	case *fxevent.Provided:
		if e.Err != nil {
			log.WithField("constructor", e.ConstructorName).
				WithError(e.Err).
				Error("error encountered while applying options")
			return
		}
		for _, rtype := range e.OutputTypeNames {
			log.WithField("constructor", e.ConstructorName).
				WithField("type", rtype).
				Debug("Provided")
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			log.WithField("function", e.FunctionName).
				WithField("stack", e.Trace).
				WithError(e.Err).
				Error("Invoke failed")
		}
	case *fxevent.Stopping:
		log.WithField("signal", strings.ToUpper(e.Signal.String())).
			Info("Stopping: received signal")
	case *fxevent.Stopped:
		infoOrErr("App stop", e.Err, log)
	case *fxevent.RollingBack:
		infoOrErr("Start failed, rolling back", e.StartErr, log)
	case *fxevent.Started:
		infoOrErr("App start", e.Err, log)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			log.WithError(e.Err).Error("Custom logger initialization failed")
		}
	}
}

func infoOrErr(msg string, err error, log Interface) {
	if err == nil {
		log.Debug(msg + " succeeded")
		return
	}
	log.WithError(err).Error(msg + " failed")
}
