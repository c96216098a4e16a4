package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	dayKeyLayout = "20060102"
	maxStatsDays = 366
)

// DailyUploadCounts counts the user's active uploads per calendar day in the
// configured timezone. Every day of the inclusive range is present, keyed
// YYYYMMDD, with zero for days without uploads.
func (s *AnnotationService) DailyUploadCounts(ctx context.Context, requesterID, userID string, start, end time.Time) (map[string]int, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	if userID == "" {
		userID = requesterID
	}
	loc := s.opts.Location
	first := startOfDay(start, loc)
	last := startOfDay(end, loc)
	if first.After(last) {
		return nil, errors.Wrap(ErrInvalidInput, "start date is after end date")
	}
	if last.Sub(first) > maxStatsDays*24*time.Hour {
		return nil, errors.Wrapf(ErrInvalidInput, "range exceeds %d days", maxStatsDays)
	}
	if err := s.checkAccess(ctx, requesterID, userID); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		counts[d.Format(dayKeyLayout)] = 0
	}

	times, err := s.Repo.UploadTimes(ctx, userID, first, last.AddDate(0, 0, 1))
	if err != nil {
		return nil, stageErr(StageRead, err)
	}
	for _, t := range times {
		key := t.In(loc).Format(dayKeyLayout)
		if _, ok := counts[key]; ok {
			counts[key]++
		}
	}
	return counts, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ParseDay parses a YYYYMMDD or YYYY-MM-DD date in loc.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{dayKeyLayout, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidInput, "malformed date %q", raw)
}
