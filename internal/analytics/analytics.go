// Package analytics turns the event journal into daily usage reports.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/montanaflynn/stats"

	"watchwise/internal/storage"
)

// DailyStats is one day's usage.
type DailyStats struct {
	Date            string                    `json:"date"`
	TotalEvents     int                       `json:"total_events"`
	UniqueUsers     int                       `json:"unique_users"`
	EventsByKind    map[storage.EventKind]int `json:"events_by_kind"`
	Steps           int                       `json:"steps"`
	Clarifications  int                       `json:"clarifications"`
	ReadySessions   int                       `json:"ready_sessions"`
	Recommendations int                       `json:"recommendations"`
	Ratings         map[int]int               `json:"ratings"`
	AverageRating   float64                   `json:"average_rating"`
	MedianRating    float64                   `json:"median_rating"`
	Embeddings      int                       `json:"embeddings"`
	EmbeddingFails  int                       `json:"embedding_failures"`
	UserStats       map[string]UserStats      `json:"user_stats"`
}

// UserStats is one user's share of a day.
type UserStats struct {
	UserID          string `json:"user_id"`
	Steps           int    `json:"steps"`
	Recommendations int    `json:"recommendations"`
	Ratings         int    `json:"ratings"`
}

// AnalyzeDailyEvents aggregates the events that fall on day's calendar date
// in day's location. Events without a user count toward totals only.
func AnalyzeDailyEvents(events []storage.Event, day time.Time) *DailyStats {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	ds := &DailyStats{
		Date:         start.Format("2006-01-02"),
		EventsByKind: make(map[storage.EventKind]int),
		Ratings:      make(map[int]int),
		UserStats:    make(map[string]UserStats),
	}
	var ratings stats.Float64Data

	for _, ev := range events {
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		ds.TotalEvents++
		ds.EventsByKind[ev.Kind]++

		var us UserStats
		if ev.UserID != "" {
			us = ds.UserStats[ev.UserID]
			us.UserID = ev.UserID
		}

		switch ev.Kind {
		case storage.EventConversationStep:
			ds.Steps++
			us.Steps++
			switch ev.Phase {
			case "needs_clarification":
				ds.Clarifications++
			case "ready":
				ds.ReadySessions++
			}
		case storage.EventRecommendation:
			ds.Recommendations += ev.Count
			us.Recommendations += ev.Count
		case storage.EventRating:
			if ev.Rating >= 1 && ev.Rating <= 5 {
				ds.Ratings[ev.Rating]++
				ratings = append(ratings, float64(ev.Rating))
			}
			us.Ratings++
		case storage.EventEmbedding:
			if ev.Failed {
				ds.EmbeddingFails++
			} else {
				ds.Embeddings++
			}
		}

		if ev.UserID != "" {
			ds.UserStats[ev.UserID] = us
		}
	}

	ds.UniqueUsers = len(ds.UserStats)
	if len(ratings) > 0 {
		ds.AverageRating, _ = stats.Round(mean(ratings), 2)
		ds.MedianRating, _ = ratings.Median()
	}
	return ds
}

func mean(d stats.Float64Data) float64 {
	m, err := d.Mean()
	if err != nil {
		return 0
	}
	return m
}

// GenerateReportSummary renders the stats as plain text for the admin.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Watchwise usage for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Events: %d\nUnique users: %d\n", ds.TotalEvents, ds.UniqueUsers)
	fmt.Fprintf(&b, "Questionnaire steps: %d (clarifications: %d, ready: %d)\n", ds.Steps, ds.Clarifications, ds.ReadySessions)
	fmt.Fprintf(&b, "Recommendations served: %d\n", ds.Recommendations)
	fmt.Fprintf(&b, "Embeddings stored: %d, failed: %d\n", ds.Embeddings, ds.EmbeddingFails)

	if len(ds.Ratings) > 0 {
		total := 0
		for _, n := range ds.Ratings {
			total += n
		}
		fmt.Fprintf(&b, "\nRatings: %d (avg %.2f, median %.1f)\n", total, ds.AverageRating, ds.MedianRating)
		for r := 5; r >= 1; r-- {
			if n := ds.Ratings[r]; n > 0 {
				fmt.Fprintf(&b, "- %d★: %d\n", r, n)
			}
		}
	}

	if len(ds.UserStats) > 0 {
		ids := make([]string, 0, len(ds.UserStats))
		for id := range ds.UserStats {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(&b, "\nUsers (%d):\n", len(ids))
		for _, id := range ids {
			us := ds.UserStats[id]
			fmt.Fprintf(&b, "- %s: %d steps, %d recommendations, %d ratings\n", id, us.Steps, us.Recommendations, us.Ratings)
		}
	}
	return b.String()
}

// ToJSON serializes the stats for detailed inspection.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
