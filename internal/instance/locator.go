// Package instance maps a launcher pid to the pid of the workload running
// inside the sandbox it started, by reading the sandbox runtime directory.
//
// Layout, one directory per running instance:
//
//	<dir>/<instance>/pid             launcher pid, decimal text
//	<dir>/<instance>/bwrapinfo.json  {"child-pid": <workload pid>, ...}
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const pidFileName = "pid"

var (
	ErrNoSandboxDir        = errors.New("no sandbox directory")
	ErrNoMatch             = errors.New("no matching sandbox instance")
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	ErrPIDFieldAbsent      = errors.New("pid field absent")
	ErrPIDFieldNotNumeric  = errors.New("pid field not numeric")
)

type Locator struct {
	dir            string
	descriptorFile string
	pidField       string
}

func NewLocator(dir, descriptorFile, pidField string) *Locator {
	return &Locator{dir: dir, descriptorFile: descriptorFile, pidField: pidField}
}

// Locate returns the workload pid of the instance started by launcherPID.
// It reads the runtime directory once; a descriptor the sandbox has not
// published yet is an error, not something to wait for.
func (l *Locator) Locate(launcherPID string) (int, error) {
	instDir, err := l.findInstance(launcherPID)
	if err != nil {
		return 0, err
	}

	descPath := filepath.Join(instDir, l.descriptorFile)
	data, err := os.ReadFile(descPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedDescriptor, err)
	}
	return parseDescriptor(data, l.pidField)
}

func (l *Locator) findInstance(launcherPID string) (string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoSandboxDir, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		instDir := filepath.Join(l.dir, e.Name())
		data, err := os.ReadFile(filepath.Join(instDir, pidFileName))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == launcherPID {
			return instDir, nil
		}
	}
	return "", fmt.Errorf("%w: launcher pid %s in %s", ErrNoMatch, launcherPID, l.dir)
}

func parseDescriptor(data []byte, field string) (int, error) {
	if !gjson.ValidBytes(data) {
		return 0, fmt.Errorf("%w: invalid json", ErrMalformedDescriptor)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return 0, fmt.Errorf("%w: not a json object", ErrMalformedDescriptor)
	}

	// Field names like "child-pid" carry no gjson path syntax, but escape
	// anyway so a configured name is always looked up literally.
	v := doc.Get(gjson.Escape(field))
	if !v.Exists() {
		return 0, fmt.Errorf("%w: %q", ErrPIDFieldAbsent, field)
	}
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: %q is %s", ErrPIDFieldNotNumeric, field, v.Raw)
	}
	pid, err := strconv.Atoi(v.Raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q is %s", ErrPIDFieldNotNumeric, field, v.Raw)
	}
	return pid, nil
}
