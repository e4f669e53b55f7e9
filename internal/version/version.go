// Package version хранит сведения о сборке, заполняемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/stayawake/internal/version.version=v1.2.0
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("stayawake version=%s commit=%s date=%s", version, commit, date)
}

// Fields — сведения о сборке для стартовой записи в лог.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "build_date": date}
}

// UserAgent — значение User-Agent для исходящих запросов утилит витрины.
func UserAgent(tool string) string {
	return fmt.Sprintf("stayawake-%s/%s", tool, version)
}
