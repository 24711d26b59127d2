// Command simulate drives the scheduler, timer, and serial transport
// packages against the in-memory hwsim platform, standing in for real
// silicon so the runtime can be exercised from a terminal.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("simulate: fatal")
	}
}
