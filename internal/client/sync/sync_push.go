package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/snapi"
)

// Pusher uploads built records to the remote instance.
type Pusher struct {
	remote   snapi.Store
	manifest manifest.Store
	builder  *Builder
	retry    RetryPolicy
	status   *StatusTracker
}

func NewPusher(remote snapi.Store, store manifest.Store, builder *Builder, retry RetryPolicy, status *StatusTracker) *Pusher {
	return &Pusher{
		remote:   remote,
		manifest: store,
		builder:  builder,
		retry:    retry,
		status:   status,
	}
}

// Push pushes every record concurrently. One result is returned per record in input order;
// a failing record never affects its siblings.
func (p *Pusher) Push(ctx context.Context, recs []*BuildableRecord) []Result {
	results := make([]Result, len(recs))

	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.pushRecord(ctx, rec)
		}()
	}
	wg.Wait()
	return results
}

func (p *Pusher) pushRecord(ctx context.Context, rec *BuildableRecord) Result {
	key := rec.Key()
	summary := rec.Summary()
	fail := func(state RecordState, err error, msg string) Result {
		p.status.Set(key, state, err)
		return Result{Record: rec, Message: msg}
	}

	p.status.Set(key, StatePending, nil)

	p.status.Set(key, StateBuilding, nil)
	built, err := p.builder.Build(ctx, rec)
	if err != nil {
		return fail(StateBuildFailed, err, summary+" : "+err.Error())
	}
	p.status.Set(key, StateBuilt, nil)

	p.status.Set(key, StateConflictChecking, nil)
	if err := checkConflict(ctx, p.remote, rec, built); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return fail(StateConflicted, err, summary+" : "+err.Error())
		}
		return fail(StateFailed, err, summary+" : "+err.Error())
	}
	p.status.Set(key, StateConflictClear, nil)

	p.status.Set(key, StateUploading, nil)
	resp, err := Retry(ctx, p.retry, func(ctx context.Context) (*snapi.Response, error) {
		return p.remote.Update(ctx, rec.Table, rec.SysID, built)
	}, func(remaining int, err error) {
		slog.Warn("push retry", "record", summary, "remaining", remaining, "error", err)
		p.status.Set(key, StateRetryWait, err)
	})
	if err != nil {
		return fail(StateFailed, err, summary+" : "+err.Error())
	}

	switch {
	case resp.Status == http.StatusNotFound:
		return fail(StateFailed, snapi.ErrNotFound, fmt.Sprintf("Could not find %s on the server.", summary))
	case !resp.OK():
		err := fmt.Errorf("unexpected response (%d)", resp.Status)
		return fail(StateFailed, err, fmt.Sprintf("Failed to push %s. Received an unexpected response (%d)", summary, resp.Status))
	}

	p.trackVersion(ctx, rec)
	p.status.Set(key, StateUploaded, nil)
	return Result{Record: rec, Success: true, Message: summary + " pushed successfully!"}
}

// trackVersion records the remote's current version of a pushed record. The upload already
// succeeded, so failures here are logged only.
func (p *Pusher) trackVersion(ctx context.Context, rec *BuildableRecord) {
	latest, err := snapi.CurrentVersion(ctx, p.remote, rec.Table, rec.SysID)
	if err != nil {
		slog.Warn("push version lookup", "record", rec.Summary(), "error", err)
		return
	}
	if err := p.manifest.UpdateRecordVersion(rec.Table, rec.SysID, latest.ID); err != nil {
		slog.Warn("push version update", "record", rec.Summary(), "error", err)
		return
	}
	slog.Debug("push version tracked", "record", rec.Summary(), "version", latest.ID)
}
