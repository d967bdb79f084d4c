package services

import (
	"context"
	"sync"
)

type contextKey string

const runIDContextKey contextKey = "runID"

func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey, runID)
}

func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDContextKey); v != nil {
		if runID, ok := v.(string); ok {
			return runID
		}
	}
	return ""
}

type IUsageTracker interface {
	AddTokens(ctx context.Context, tknIn, tknOut int)
	RunUsage(runID string) Usage
	Forget(runID string)
}

type Usage struct {
	TokensIn  int
	TokensOut int
	Calls     int
}

// UsageTracker accumulates token usage per run. Calls made without a run id
// in the context only count toward the process total.
type UsageTracker struct {
	mu    sync.RWMutex
	total Usage
	runs  map[string]*Usage
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		runs: make(map[string]*Usage),
	}
}

func (u *UsageTracker) AddTokens(ctx context.Context, tknIn, tknOut int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.total.TokensIn += tknIn
	u.total.TokensOut += tknOut
	u.total.Calls++

	runID := RunIDFromContext(ctx)
	if runID == "" {
		return
	}
	usage, ok := u.runs[runID]
	if !ok {
		usage = &Usage{}
		u.runs[runID] = usage
	}
	usage.TokensIn += tknIn
	usage.TokensOut += tknOut
	usage.Calls++
}

func (u *UsageTracker) RunUsage(runID string) Usage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if usage, ok := u.runs[runID]; ok {
		return *usage
	}
	return Usage{}
}

// Forget drops the per-run counters once the run summary has been built.
func (u *UsageTracker) Forget(runID string) {
	u.mu.Lock()
	delete(u.runs, runID)
	u.mu.Unlock()
}

func (u *UsageTracker) Total() Usage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total
}
