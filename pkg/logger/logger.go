package logger

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thijsmie/pocketbase/pkg/errortracking"
)

var (
	mu           sync.RWMutex
	sugar        *zap.SugaredLogger
	errorTracker errortracking.Provider
)

// Init builds the package logger. Development mode logs at debug level in a
// human readable format; production mode logs JSON at info level to stderr.
func Init(dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	UpdateLogger(&cfg)
}

// UpdateLoggerPath redirects output to path.
func UpdateLoggerPath(path string, dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	UpdateLogger(&cfg)
}

// UpdateLogger replaces the package logger with one built from config.
// A nil config yields the production defaults.
func UpdateLogger(config *zap.Config) {
	if config == nil {
		defaults := zap.NewProductionConfig()
		config = &defaults
	}

	built, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Print(err)
		return
	}

	SetLogger(built)
	Debug("PocketBase client logger initialized")
}

// SetLogger installs an already built zap logger, e.g. zaptest.NewLogger in tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		sugar = nil
		return
	}
	sugar = l.Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

// InitErrorTracking initializes the error tracking provider
func InitErrorTracking(provider errortracking.Provider) {
	mu.Lock()
	errorTracker = provider
	mu.Unlock()
	if provider != nil {
		Info("Error tracking initialized")
	}
}

// GetErrorTracker returns the current error tracking provider
func GetErrorTracker() errortracking.Provider {
	mu.RLock()
	defer mu.RUnlock()
	return errorTracker
}

// CloseErrorTracking flushes and closes the error tracking provider
func CloseErrorTracking() error {
	tracker := GetErrorTracker()
	if tracker == nil {
		return nil
	}
	tracker.Flush(5 * time.Second)
	return tracker.Close()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debug(template string, args ...interface{}) {
	l := current()
	if l == nil {
		log.Printf(template, args...)
		return
	}
	l.Debugf(template, args...)
}

func Info(template string, args ...interface{}) {
	l := current()
	if l == nil {
		log.Printf(template, args...)
		return
	}
	l.Infof(template, args...)
}

func Warn(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if l := current(); l == nil {
		log.Printf("%s", message)
	} else {
		l.Warn(message)
	}

	if tracker := GetErrorTracker(); tracker != nil {
		tracker.CaptureMessage(context.Background(), message, errortracking.SeverityWarning, nil)
	}
}

func Error(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if l := current(); l == nil {
		log.Printf("%s", message)
	} else {
		l.Error(message)
	}

	if tracker := GetErrorTracker(); tracker != nil {
		tracker.CaptureMessage(context.Background(), message, errortracking.SeverityError, nil)
	}
}

// CatchPanicCallback recovers a panic in the calling goroutine, reports it and
// hands the recovered value to cb. Must be deferred directly.
func CatchPanicCallback(location string, cb func(err any)) {
	if err := recover(); err != nil {
		reportPanic(location, err, debug.Stack())
		if cb != nil {
			cb(err)
		}
	}
}

// CatchPanic recovers and reports a panic. Must be deferred directly.
func CatchPanic(location string) {
	if err := recover(); err != nil {
		reportPanic(location, err, debug.Stack())
	}
}

// HandlePanic logs a value obtained from recover() and turns it into an error.
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = logger.HandlePanic("Dispatcher.invoke", r)
//	    }
//	}()
func HandlePanic(location string, r any) error {
	reportPanic(location, r, debug.Stack())
	return fmt.Errorf("panic in %s: %v", location, r)
}

func reportPanic(location string, r any, stack []byte) {
	if l := current(); l != nil {
		l.Errorw(fmt.Sprintf("Panic in %s: %v", location, r), "stack", string(stack))
	} else {
		log.Printf("%s: PANIC -> %+v\n%s", location, r, stack)
	}

	if tracker := GetErrorTracker(); tracker != nil {
		tracker.CapturePanic(context.Background(), r, stack, map[string]interface{}{
			"location": location,
		})
	}
}
