package dashboard

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

const (
	defaultHotspotLimit = 10
	maxHotspotLimit     = 100
)

// ParseFilter reads region, types, from and to. A plain date in "to" covers
// that whole day.
func ParseFilter(q url.Values) (store.Filter, error) {
	var f store.Filter

	region, err := models.ParseRegion(q.Get("region"))
	if err != nil {
		return f, err
	}
	f.Region = region
	f.Types = splitList(q.Get("types"))

	if s := strings.TrimSpace(q.Get("from")); s != "" {
		t, err := config.ParseTime(s)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = t
	}
	if s := strings.TrimSpace(q.Get("to")); s != "" {
		t, err := config.ParseTime(s)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		if len(s) == len("2006-01-02") {
			t = t.Add(24 * time.Hour)
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, fmt.Errorf("from must be before to")
	}
	return f, nil
}

// ParseLimit returns the hotspot limit, defaulting to 10 and capped at 100.
func ParseLimit(s string) (int, error) {
	if s == "" {
		return defaultHotspotLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxHotspotLimit {
		n = maxHotspotLimit
	}
	return n, nil
}

// ParsePredictionQuery reads district, weekday, block and version. Version 0
// means the latest model.
func ParsePredictionQuery(q url.Values) (store.PredictionQuery, error) {
	pq := store.PredictionQuery{BlockStart: -1, DistrictIDs: splitList(q.Get("district"))}

	if s := q.Get("weekday"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 7 {
			return pq, fmt.Errorf("weekday must be 1 (Monday) to 7 (Sunday)")
		}
		pq.Weekday = n
	}
	if s := q.Get("block"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 23 {
			return pq, fmt.Errorf("block must be an hour between 0 and 23")
		}
		pq.BlockStart = n / models.BlockHours * models.BlockHours
	}
	if s := q.Get("version"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return pq, fmt.Errorf("version must be a positive integer")
		}
		pq.Version = n
	}
	return pq, nil
}

// cacheKey renders a filter canonically so equivalent queries share an entry.
func cacheKey(endpoint string, f store.Filter, extra ...string) string {
	types := append([]string(nil), f.Types...)
	sort.Strings(types)
	parts := []string{
		endpoint,
		string(f.Region),
		strings.Join(types, ","),
		formatTime(f.From),
		formatTime(f.To),
	}
	return strings.Join(append(parts, extra...), "|")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func splitList(s string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
