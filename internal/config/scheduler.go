package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// SchedulerWorkers returns the configured number of concurrent job workers.
// Defaults to the number of logical CPUs when unset or invalid.
func SchedulerWorkers() int {
	value := strings.TrimSpace(os.Getenv("SCHEDULER_WORKERS"))
	if value == "" {
		return runtime.NumCPU()
	}
	workers, err := strconv.Atoi(value)
	if err != nil || workers < 1 {
		return runtime.NumCPU()
	}
	return workers
}
