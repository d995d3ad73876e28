package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"asset-orchestrator/core/executor"
	"asset-orchestrator/core/models"
	"asset-orchestrator/core/repository"
	"asset-orchestrator/storage"
)

// fakeExecutor hands out sequential command ids and reports statuses set by the test.
type fakeExecutor struct {
	mu         sync.Mutex
	seq        int
	statuses   map[string]models.CommandStatus
	dispatched map[string][]models.RemoteCommand // by target
	polledOn   map[string]string                 // command id to last polled target
	dispatchFn func(cmd models.RemoteCommand) error
	statusErr  error

	// onDispatch runs before the command is accepted, outside the lock.
	onDispatch func(ctx context.Context, cmd models.RemoteCommand) error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		statuses:   map[string]models.CommandStatus{},
		dispatched: map[string][]models.RemoteCommand{},
		polledOn:   map[string]string{},
	}
}

func (f *fakeExecutor) Dispatch(ctx context.Context, cmd models.RemoteCommand) (models.Dispatch, error) {
	if f.onDispatch != nil {
		if err := f.onDispatch(ctx, cmd); err != nil {
			return models.Dispatch{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchFn != nil {
		if err := f.dispatchFn(cmd); err != nil {
			return models.Dispatch{}, err
		}
	}
	f.seq++
	id := fmt.Sprintf("cmd-%d", f.seq)
	f.statuses[id] = models.CommandPending
	f.dispatched[cmd.Target] = append(f.dispatched[cmd.Target], cmd)
	return models.Dispatch{CommandID: id, Target: cmd.Target}, nil
}

func (f *fakeExecutor) Status(_ context.Context, commandID, target string) (models.CommandStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polledOn[commandID] = target
	if f.statusErr != nil {
		return "", f.statusErr
	}
	status, ok := f.statuses[commandID]
	if !ok {
		return models.CommandPending, nil
	}
	return status, nil
}

func (f *fakeExecutor) set(commandID string, status models.CommandStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[commandID] = status
}

func (f *fakeExecutor) polledTarget(commandID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polledOn[commandID]
}

func (f *fakeExecutor) dispatchCount(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched[target])
}

// memoryJobs is an in-memory JobRepository with the same conditional
// semantics as the real stores. Like them it fails on a done context.
type memoryJobs struct {
	mu      sync.Mutex
	records map[string]models.JobRecord
	failPut error
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{records: map[string]models.JobRecord{}}
}

func (m *memoryJobs) CreateRecord(ctx context.Context, record *models.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	if _, ok := m.records[record.CommandID]; ok {
		return repository.ErrConditionFailed
	}
	if record.Stage == "" {
		record.Stage = models.Stage1Pending
	}
	record.CreatedAt = time.Now()
	m.records[record.CommandID] = *record
	return nil
}

func (m *memoryJobs) GetRecord(ctx context.Context, commandID string) (*models.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[commandID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memoryJobs) update(ctx context.Context, commandID string, fn func(r *models.JobRecord) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[commandID]
	if !ok {
		return repository.ErrNotFound
	}
	if !fn(&r) {
		return repository.ErrConditionFailed
	}
	m.records[commandID] = r
	return nil
}

func (m *memoryJobs) AdvanceStage(ctx context.Context, commandID string, from, to models.Stage) error {
	return m.update(ctx, commandID, func(r *models.JobRecord) bool {
		if r.Stage != from {
			return false
		}
		r.Stage = to
		return true
	})
}

func (m *memoryJobs) ClaimFollowUp(ctx context.Context, commandID, token string, now time.Time, lease time.Duration) error {
	return m.update(ctx, commandID, func(r *models.JobRecord) bool {
		if r.DerivedArtifactURI != "" {
			return false
		}
		stale := r.Stage == models.Stage2Dispatching && r.FollowUpClaimedAt != nil && r.FollowUpClaimedAt.Before(now.Add(-lease))
		if r.Stage != models.Stage1Done && !stale {
			return false
		}
		r.Stage = models.Stage2Dispatching
		r.FollowUpClaim = token
		r.FollowUpClaimedAt = &now
		return true
	})
}

func (m *memoryJobs) RecordFollowUp(ctx context.Context, commandID, token, followUpCommandID, derivedURI string) error {
	return m.update(ctx, commandID, func(r *models.JobRecord) bool {
		if r.Stage != models.Stage2Dispatching || r.FollowUpClaim != token || r.DerivedArtifactURI != "" {
			return false
		}
		r.Stage = models.Stage2Pending
		r.DerivedArtifactURI = derivedURI
		r.FollowUpCommandID = followUpCommandID
		return true
	})
}

func (m *memoryJobs) ReleaseFollowUp(ctx context.Context, commandID, token string) error {
	return m.update(ctx, commandID, func(r *models.JobRecord) bool {
		if r.Stage != models.Stage2Dispatching || r.FollowUpClaim != token {
			return false
		}
		r.Stage = models.Stage1Done
		r.FollowUpClaim = ""
		r.FollowUpClaimedAt = nil
		return true
	})
}

func (m *memoryJobs) get(commandID string) models.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[commandID]
}

// fakeURLs signs deterministically.
type fakeURLs struct {
	err error
}

func (f *fakeURLs) GetURL(_ context.Context, uri storage.ArtifactURI) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://" + uri.Bucket + ".s3.amazonaws.com/" + uri.Key + "?X-Amz-Signature=test", nil
}

var errExecutorDown = errors.New("executor unreachable")

func testOptions() *Options {
	return &Options{
		Bucket:       "assets",
		Region:       "us-west-2",
		JobType:      "reconstruct",
		OutputPrefix: storage.PrefixGenerated3DAssets,
		OutputFormat: "glb",
		Stages: map[string]executor.StageTemplate{
			"reconstruct": {
				Target:  "i-reconstruct",
				WorkDir: "/home/ssm-user/TripoSR",
				Run:     "python3 run.py {input} --output-dir {output_dir} --model-save-format {format}",
				Output:  "output/0/mesh.{format}",
			},
			"convert": {
				Target: "i-convert",
				Run:    "python3 convert.py {input} --name {name}",
				Output: "output/{model_id}.{format}",
			},
		},
		Conversions: map[string]Conversion{
			"glb": {JobType: "convert", Format: "usdz"},
		},
	}
}
