// Package version хранит сведения о сборке, проставляемые через -ldflags.
package version

import "fmt"

var (
	release   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Release возвращает версию релиза.
func Release() string { return release }

// Commit возвращает git-коммит сборки.
func Commit() string { return commit }

// BuildDate возвращает дату сборки.
func BuildDate() string { return buildDate }

// String собирает краткую строку для стартового лога и health-эндпоинта.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", release, commit, buildDate)
}
