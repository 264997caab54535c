package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Retention caps how many snapshots survive in each age tier. Snapshots
// older than a year are always removed.
type Retention struct {
	Hourly  int `json:"hourly"`  // younger than a day
	Daily   int `json:"daily"`   // younger than a week
	Weekly  int `json:"weekly"`  // younger than 30 days
	Monthly int `json:"monthly"` // younger than a year
}

// DefaultRetention keeps a day of hourly snapshots, then progressively fewer.
func DefaultRetention() Retention {
	return Retention{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

func (r Retention) withDefaults() Retention {
	d := DefaultRetention()
	if r.Hourly <= 0 {
		r.Hourly = d.Hourly
	}
	if r.Daily <= 0 {
		r.Daily = d.Daily
	}
	if r.Weekly <= 0 {
		r.Weekly = d.Weekly
	}
	if r.Monthly <= 0 {
		r.Monthly = d.Monthly
	}
	return r
}

// expired returns the snapshots the policy discards. Input must be sorted
// newest first.
func (r Retention) expired(snaps []Snapshot, now time.Time) []Snapshot {
	tiers := []struct {
		maxAge time.Duration
		keep   int
	}{
		{24 * time.Hour, r.Hourly},
		{7 * 24 * time.Hour, r.Daily},
		{30 * 24 * time.Hour, r.Weekly},
		{365 * 24 * time.Hour, r.Monthly},
	}
	kept := make([]int, len(tiers))

	var out []Snapshot
	for _, s := range snaps {
		age := now.Sub(s.TakenAt)
		tier := -1
		for i, t := range tiers {
			if age < t.maxAge {
				tier = i
				break
			}
		}
		if tier >= 0 && kept[tier] < tiers[tier].keep {
			kept[tier]++
			continue
		}
		out = append(out, s)
	}
	return out
}

// Prune deletes the snapshots the retention policy no longer keeps and
// returns how many were removed.
func (m *Manager) Prune() (int, error) {
	snaps, err := listSnapshots(m.dir)
	if err != nil {
		return 0, err
	}
	var (
		removed int
		errs    []error
	)
	for _, s := range m.retention.expired(snaps, m.now()) {
		if err := os.Remove(s.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// listSnapshots reads snapshot files, taking the time from the file name and
// falling back to the modification time for foreign names.
func listSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: read %s: %w", dir, err)
	}
	var snaps []Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		taken := info.ModTime()
		stamp := strings.TrimSuffix(strings.TrimPrefix(e.Name(), filePrefix), ".db")
		if t, err := time.Parse(fileLayout, stamp); err == nil {
			taken = t
		}
		snaps = append(snaps, Snapshot{
			Path:    filepath.Join(dir, e.Name()),
			TakenAt: taken,
			Size:    info.Size(),
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].TakenAt.After(snaps[j].TakenAt) })
	return snaps, nil
}
