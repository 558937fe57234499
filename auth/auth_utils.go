package auth

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logTransition(from, to Phase) *zerolog.Event {
	event := log.Info()
	if to == PhaseError {
		event = log.Warn()
	}
	return event.Str("from", string(from)).Str("to", string(to))
}

func trimOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}
