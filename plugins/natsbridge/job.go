package natsbridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Job is one "<fabId>;<blueprint>;<title>" request from the job subject.
type Job struct {
	FabID     int
	Blueprint string
	Title     string
}

// ParseJob decodes a job message. The title may contain ';'.
func ParseJob(msg string) (Job, error) {
	parts := strings.SplitN(strings.TrimSpace(msg), ";", 3)
	if len(parts) != 3 {
		return Job{}, fmt.Errorf("job %q: want <fabId>;<blueprint>;<title>", msg)
	}
	fab, err := strconv.Atoi(parts[0])
	if err != nil {
		return Job{}, fmt.Errorf("job %q: fab id: %w", msg, err)
	}
	if parts[1] == "" {
		return Job{}, fmt.Errorf("job %q: empty blueprint name", msg)
	}
	return Job{FabID: fab, Blueprint: parts[1], Title: parts[2]}, nil
}

// String encodes j in the wire form.
func (j Job) String() string {
	return fmt.Sprintf("%d;%s;%s", j.FabID, j.Blueprint, j.Title)
}
