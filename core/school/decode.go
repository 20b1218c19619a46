package school

import (
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
)

// Lenient field readers: a field of the wrong type reads as absent.

func str(doc docstore.Document, field string) string {
	v, ok := doc.Get(field)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	}
	return ""
}

// date reads a calendar date, accepting full timestamps (truncated to YYYY-MM-DD).
func date(doc docstore.Document, field string) string {
	v, ok := doc.Get(field)
	if !ok || v == nil {
		return ""
	}
	switch d := v.(type) {
	case string:
		d = strings.TrimSpace(d)
		if len(d) > len(core.ISODate) && d[len(core.ISODate)] == 'T' {
			return d[:len(core.ISODate)]
		}
		return d
	case time.Time:
		return d.Format(core.ISODate)
	}
	return ""
}

// number reads numbers and numeric strings.
func number(doc docstore.Document, field string) (float64, bool) {
	v, ok := doc.Get(field)
	if !ok || v == nil {
		return 0, false
	}
	if f, ok := docstore.ToFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func boolean(doc docstore.Document, field string) (bool, bool) {
	v, ok := doc.Get(field)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringList(doc docstore.Document, field string) []string {
	v, ok := doc.Get(field)
	if !ok {
		return nil
	}
	switch items := v.(type) {
	case []string:
		return items
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// status reads a lowercased status, "pending" when absent.
func status(doc docstore.Document) string {
	if s := core.CleanString(str(doc, "status"), true); s != "" {
		return s
	}
	return StatusPending
}
