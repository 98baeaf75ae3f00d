// Package status serves a small HTTP endpoint that reports whether the bot
// is alive and what its last hackathon check did.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"libdb.so/hackathon-bot/internal/tracker"
)

// Reporter provides the last finished cycle, or nil if none has finished.
type Reporter interface {
	LastReport() *tracker.Report
}

// Response is the body of GET /status.
type Response struct {
	Ready bool        `json:"ready"`
	Cycle *CycleState `json:"last_cycle,omitempty"`
}

// CycleState describes a finished cycle.
type CycleState struct {
	ID           string             `json:"id"`
	Today        string             `json:"today"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Spreadsheets []SpreadsheetState `json:"spreadsheets"`
	Skipped      []SkippedState     `json:"skipped_guilds,omitempty"`
	Jobs         int                `json:"jobs"`
	Sent         int                `json:"sent"`
	Failed       int                `json:"failed"`
}

// SpreadsheetState is the outcome of one spreadsheet.
type SpreadsheetState struct {
	ID         string   `json:"id"`
	Guilds     []string `json:"guilds"`
	Rows       int      `json:"rows"`
	New        int      `json:"new"`
	FirstFetch bool     `json:"first_fetch"`
	Error      string   `json:"error,omitempty"`
	Summary    string   `json:"summary"`
}

// SkippedState is a guild that was left out of a cycle.
type SkippedState struct {
	Guild string `json:"guild"`
	Error string `json:"error"`
}

// NewHandler returns the gin engine serving /healthz and /status.
func NewHandler(reporter Reporter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		report := reporter.LastReport()
		if report == nil {
			c.JSON(http.StatusOK, Response{Ready: false})
			return
		}
		c.JSON(http.StatusOK, Response{Ready: true, Cycle: cycleState(report)})
	})

	return r
}

func cycleState(report *tracker.Report) *CycleState {
	state := &CycleState{
		ID:           report.CycleID,
		Today:        report.Today.String(),
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		Spreadsheets: make([]SpreadsheetState, 0, len(report.Spreadsheets)),
		Jobs:         report.Jobs,
		Sent:         report.Sent,
		Failed:       report.Failed,
	}

	for _, result := range report.Spreadsheets {
		s := SpreadsheetState{
			ID:         result.SpreadsheetID,
			Guilds:     make([]string, len(result.GuildIDs)),
			Rows:       result.Rows,
			New:        result.New,
			FirstFetch: result.FirstFetch,
			Summary:    result.String(),
		}
		for i, id := range result.GuildIDs {
			s.Guilds[i] = id.String()
		}
		if result.Err != nil {
			s.Error = result.Err.Error()
		}
		state.Spreadsheets = append(state.Spreadsheets, s)
	}

	for _, skipped := range report.Skipped {
		state.Skipped = append(state.Skipped, SkippedState{
			Guild: skipped.GuildID.String(),
			Error: skipped.Err.Error(),
		})
	}

	return state
}

// Serve serves the status endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string, reporter Reporter) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(reporter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn(
				"Bot could not shut down the status server cleanly.",
				"err", err)
		}
	}()

	slog.Info(
		"Bot is serving its status endpoint.",
		"addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
