package logger

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

var (
	registryLock     sync.Mutex
	subsystemLoggers = map[string]*Logger{}
)

// RegisterSubSystem returns the logger for the given subsystem tag, creating
// and registering it if it doesn't exist yet. It is meant to be called from
// package-level variable initializations, e.g.
//
//	var log = logger.RegisterSubSystem("CHAN")
func RegisterSubSystem(subsystem string) *Logger {
	registryLock.Lock()
	defer registryLock.Unlock()

	logger, ok := subsystemLoggers[subsystem]
	if !ok {
		logger = BackendLog.Logger(subsystem)
		subsystemLoggers[subsystem] = logger
	}
	return logger
}

// SetLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems are silently ignored. Uninitialized subsystems are dynamically
// created as needed.
func SetLogLevel(subsystemID string, logLevel string) {
	level, _ := LevelFromString(logLevel)
	registryLock.Lock()
	defer registryLock.Unlock()
	if logger, ok := subsystemLoggers[subsystemID]; ok {
		logger.SetLevel(level)
	}
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level. It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func SetLogLevels(logLevel string) error {
	level, ok := LevelFromString(logLevel)
	if !ok {
		return errors.Errorf("invalid log level %s", logLevel)
	}

	registryLock.Lock()
	defer registryLock.Unlock()
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}

// ParseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func ParseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		return SetLogLevels(debugLevel)
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%s]"
			return errors.Errorf(str, logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%s] is invalid -- supported " +
				"subsystems %s"
			return errors.Errorf(str, subsysID, SupportedSubsystems())
		}
		if _, ok := LevelFromString(logLevel); !ok {
			str := "the specified debug level [%s] is invalid"
			return errors.Errorf(str, logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}

// SupportedSubsystems returns a sorted slice of the registered subsystems.
func SupportedSubsystems() []string {
	registryLock.Lock()
	defer registryLock.Unlock()

	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// InitLog attaches log file and error log file to the backend log and starts
// it.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Errorf("error adding log file %s as log rotator for level %s: %s",
			logFile, LevelTrace, err)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Errorf("error adding log file %s as log rotator for level %s: %s",
			errLogFile, LevelWarn, err)
	}
	err = BackendLog.AddLogWriter(stdoutWriter{}, LevelInfo)
	if err != nil {
		return errors.Errorf("error adding stdout to the logger for level %s: %s",
			LevelInfo, err)
	}
	return BackendLog.Run()
}
