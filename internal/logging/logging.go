package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "reachmon ", log.LstdFlags|log.LUTC)
}
