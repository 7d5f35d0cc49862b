package logging

import "go.uber.org/zap"

// Named returns the global sugared logger scoped to a component name. The
// global logger is installed by config.New.
func Named(component string) *zap.SugaredLogger {
	return zap.S().Named(component)
}
