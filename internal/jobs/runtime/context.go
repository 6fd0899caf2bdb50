package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Context is the execution handle for one claimed job run. It wraps the
// mutable job_run row and the only sanctioned ways to report progress or
// terminate execution. Pipelines never touch job_run directly.
//
// Terminal states are protected: once a row is succeeded or dead, no
// further transition is written.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	// retryBase seeds the exponential backoff written on failure.
	retryBase time.Duration
	payload   map[string]any
}

var terminalStatuses = []string{types.JobStatusSucceeded, types.JobStatusDead}

// NewContext eagerly decodes the payload so handlers can read inputs via
// Payload()/PayloadUUID(). A malformed payload decodes to an empty map;
// handlers validate required fields themselves. retryBase is the pool's
// base retry delay; each further attempt doubles it.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, retryBase time.Duration) *Context {
	c := &Context{
		Ctx:       ctx,
		DB:        db,
		Job:       job,
		Repo:      repo,
		retryBase: retryBase,
	}
	c.decodePayload()
	return c
}

const maxRetryDelay = time.Hour

// backoffDelay scales the base delay with the attempt count: base on the
// first failure, doubling each attempt after, capped at maxRetryDelay.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func (c *Context) decodePayload() {
	c.payload = map[string]any{}
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err == nil {
		c.payload = m
	}
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID reads a payload field and parses it as a UUID. Returns
// (uuid.Nil, false) when missing or unparseable, keeping UUID validation out
// of pipelines.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	s, ok := v.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadString reads a payload field as a string, empty when missing.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Progress publishes a non-terminal status update: stage, percent and a
// heartbeat so the stale-running reclaim leaves this run alone.
func (c *Context) Progress(stage string, pct int) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, terminalStatuses, map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if !ok {
		return
	}
	c.Job.Stage = stage
	c.Job.Progress = pct
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
}

// Fail marks the run failed and clears the lock so it becomes retryable
// once its backoff cutoff passes. The worker promotes exhausted failures to
// dead.
func (c *Context) Fail(stage string, err error) {
	c.terminate(types.JobStatusFailed, stage, err)
}

// Dead marks the run terminally dead, skipping retries. Used for
// validation failures where a retry can never succeed; the payload is kept
// for inspection.
func (c *Context) Dead(stage string, err error) {
	c.terminate(types.JobStatusDead, stage, err)
}

func (c *Context) terminate(status, stage string, err error) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	updates := map[string]interface{}{
		"status":        status,
		"stage":         stage,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}
	var nextRetry *time.Time
	if status == types.JobStatusFailed {
		t := now.Add(backoffDelay(c.retryBase, c.Job.Attempts))
		nextRetry = &t
		updates["next_retry_at"] = t
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, terminalStatuses, updates)
	if !ok {
		return
	}
	c.Job.Status = status
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.NextRetryAt = nextRetry
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
}

// Succeed marks the run terminally succeeded and stores the result payload.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, terminalStatuses, map[string]interface{}{
		"status":       types.JobStatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if !ok {
		return
	}
	c.Job.Status = types.JobStatusSucceeded
	c.Job.Stage = finalStage
	c.Job.Progress = 100
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
}
