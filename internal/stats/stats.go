package stats

import (
	"strconv"
	"strings"
	"time"
)

type Range string

const (
	RangeToday Range = "today"
	RangeWeek  Range = "week"
	RangeAll   Range = "all"
)

func ParseRange(s string) (Range, bool) {
	switch Range(s) {
	case RangeToday, RangeWeek, RangeAll:
		return Range(s), true
	}
	return "", false
}

// RangeFrom resolves the inclusive lower bound for a range: UTC midnight for
// today, midnight seven days back for week, none for all-time. There is
// never an upper bound.
func RangeFrom(now time.Time, rng Range) *time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch rng {
	case RangeToday:
		return &midnight
	case RangeWeek:
		from := midnight.AddDate(0, 0, -7)
		return &from
	}
	return nil
}

type Bucket int

const (
	BucketInProgress Bucket = iota
	BucketSuccess
	BucketFailed
)

var (
	successTags = []string{"WON", "SUCCESS"}
	failedTags  = []string{"LOSE", "FAILED"}
)

// Classify maps a stage id to exactly one bucket by case-insensitive
// substring match. Success tags are checked first, so a stage containing
// both sets of tags counts as success.
func Classify(stageID string) Bucket {
	upper := strings.ToUpper(stageID)
	for _, tag := range successTags {
		if strings.Contains(upper, tag) {
			return BucketSuccess
		}
	}
	for _, tag := range failedTags {
		if strings.Contains(upper, tag) {
			return BucketFailed
		}
	}
	return BucketInProgress
}

// ParseAmount reads a CRM monetary amount, defaulting to zero on anything
// non-numeric.
func ParseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// DealStats buckets a set of deals or leads into in-progress, success and
// failed counters. Amounts are arithmetic sums of raw values regardless of
// per-record currency; no conversion occurs.
type DealStats struct {
	InProgress       int
	Success          int
	Failed           int
	InProgressAmount float64
	SuccessAmount    float64
	FailedAmount     float64
	TotalAmount      float64
}

func (s *DealStats) Add(stageID string, amount float64) {
	switch Classify(stageID) {
	case BucketSuccess:
		s.Success++
		s.SuccessAmount += amount
	case BucketFailed:
		s.Failed++
		s.FailedAmount += amount
	default:
		s.InProgress++
		s.InProgressAmount += amount
	}
	s.TotalAmount += amount
}

func (s DealStats) Count() int {
	return s.InProgress + s.Success + s.Failed
}

// ClientDealInfo is a per-counterparty aggregate with a stage-name
// histogram.
type ClientDealInfo struct {
	ClientID   string
	ClientName string
	ClientType string
	DealsCount int
	Stats      DealStats
	Stages     map[string]int
}

type DetailedStats struct {
	Clients    []ClientDealInfo
	StageNames map[string]string
}
