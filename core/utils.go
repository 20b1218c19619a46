package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ISODate is the layout of every calendar date stored in documents.
const ISODate = "2006-01-02"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Today returns the current local date as YYYY-MM-DD.
func Today() string {
	return time.Now().Format(ISODate)
}

// NowUTC returns the current UTC time as an ISO-8601 string with a "Z" suffix.
func NowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run, hence the walk up.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd // not in a source tree (deployed binary)
		}
		currDir = newDir
	}
}
