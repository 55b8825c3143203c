package experiment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/runner"
)

type fakeRelationalStore struct {
	inputs        map[string]domain.Input
	versions      map[string]domain.Version
	experiments   map[string]domain.Experiment
	inputAliases  map[string]map[string]string
	versionAliases map[string]map[string]string
	reservations  map[string]uuid.UUID
	deployments   map[domain.DeploymentName]domain.Deployment
}

func newFakeRelationalStore() *fakeRelationalStore {
	return &fakeRelationalStore{
		inputs:         map[string]domain.Input{},
		versions:       map[string]domain.Version{},
		experiments:    map[string]domain.Experiment{},
		inputAliases:   map[string]map[string]string{},
		versionAliases: map[string]map[string]string{},
		reservations:   map[string]uuid.UUID{},
		deployments:    map[domain.DeploymentName]domain.Deployment{},
	}
}

func (f *fakeRelationalStore) UpsertInput(_ context.Context, _ int64, in domain.Input) (string, bool, error) {
	id, err := domain.ComputeInputID(in)
	if err != nil {
		return "", false, err
	}
	_, existed := f.inputs[id]
	f.inputs[id] = in
	return id, !existed, nil
}

func (f *fakeRelationalStore) UpsertVersion(_ context.Context, _ int64, v domain.Version) (string, bool, error) {
	id, err := domain.ComputeVersionID(v)
	if err != nil {
		return "", false, err
	}
	_, existed := f.versions[id]
	f.versions[id] = v
	return id, !existed, nil
}

func (f *fakeRelationalStore) GetInput(_ context.Context, _ int64, id string) (domain.Input, error) {
	in, ok := f.inputs[id]
	if !ok {
		return domain.Input{}, apierror.NotFound("input", "not found")
	}
	return in, nil
}

func (f *fakeRelationalStore) GetVersion(_ context.Context, _ int64, id string) (domain.Version, error) {
	v, ok := f.versions[id]
	if !ok {
		return domain.Version{}, apierror.NotFound("version", "not found")
	}
	return v, nil
}

func (f *fakeRelationalStore) CreateExperiment(_ context.Context, tenantUID int64, id, agentID, name string) (domain.Experiment, error) {
	e := domain.Experiment{ID: id, TenantUID: tenantUID, AgentID: agentID, Name: name}
	f.experiments[id] = e
	f.inputAliases[id] = map[string]string{}
	f.versionAliases[id] = map[string]string{}
	return e, nil
}

func (f *fakeRelationalStore) GetExperiment(_ context.Context, _ int64, id string) (domain.Experiment, error) {
	e, ok := f.experiments[id]
	if !ok {
		return domain.Experiment{}, apierror.NotFound("experiment", "not found")
	}
	return e, nil
}

func (f *fakeRelationalStore) AddExperimentInputs(_ context.Context, _ int64, experimentID string, inputs []domain.ExperimentInput) ([]string, error) {
	var added []string
	for _, in := range inputs {
		if _, ok := f.inputAliases[experimentID][in.Alias]; ok {
			continue
		}
		f.inputAliases[experimentID][in.Alias] = in.InputID
		added = append(added, in.Alias)
	}
	return added, nil
}

func (f *fakeRelationalStore) AddExperimentVersions(_ context.Context, _ int64, experimentID string, versions []domain.ExperimentVersion) ([]string, error) {
	var added []string
	for _, v := range versions {
		if _, ok := f.versionAliases[experimentID][v.Alias]; ok {
			continue
		}
		f.versionAliases[experimentID][v.Alias] = v.VersionID
		added = append(added, v.Alias)
	}
	return added, nil
}

func (f *fakeRelationalStore) ReserveExperimentOutput(_ context.Context, _ int64, experimentID, inputID, versionID string) error {
	key := experimentID + "/" + inputID + "/" + versionID
	if _, ok := f.reservations[key]; ok {
		return apierror.DuplicateValue("already started")
	}
	f.reservations[key] = uuid.Nil
	return nil
}

func (f *fakeRelationalStore) FinalizeExperimentOutput(_ context.Context, _ int64, experimentID, inputID, versionID string, completionID uuid.UUID) error {
	key := experimentID + "/" + inputID + "/" + versionID
	existing, ok := f.reservations[key]
	if !ok || existing != uuid.Nil {
		return apierror.DuplicateValue("already finalized")
	}
	f.reservations[key] = completionID
	return nil
}

func (f *fakeRelationalStore) UpsertDeployment(_ context.Context, _ int64, d domain.Deployment) (domain.Deployment, error) {
	f.deployments[d.Name] = d
	return d, nil
}

func (f *fakeRelationalStore) GetDeployment(_ context.Context, _ int64, name domain.DeploymentName) (domain.Deployment, error) {
	d, ok := f.deployments[name]
	if !ok {
		return domain.Deployment{}, apierror.NotFound("deployment", "not found")
	}
	return d, nil
}

func (f *fakeRelationalStore) ArchiveDeployment(_ context.Context, _ int64, name domain.DeploymentName) error {
	d, ok := f.deployments[name]
	if !ok {
		return apierror.NotFound("deployment", "not found")
	}
	d.Archived = true
	f.deployments[name] = d
	return nil
}

func (f *fakeRelationalStore) ListDeployments(_ context.Context, _ int64, _ string, limit int) ([]domain.Deployment, string, error) {
	var out []domain.Deployment
	for _, d := range f.deployments {
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}
	return out, "", nil
}

type fakeAnalyticalStore struct {
	facts map[string]float64
}

func newFakeAnalyticalStore() *fakeAnalyticalStore {
	return &fakeAnalyticalStore{facts: map[string]float64{}}
}

func (f *fakeAnalyticalStore) InsertExperimentOutputFact(_ context.Context, _ int64, experimentID string, _ domain.ExperimentOutput, costUSD, _ float64) error {
	f.facts[experimentID] += costUSD
	return nil
}

func (f *fakeAnalyticalStore) ExperimentCost(_ context.Context, _ int64, experimentID string) (float64, error) {
	return f.facts[experimentID], nil
}

type fakeRunner struct {
	completion *domain.AgentCompletion
	err        error
}

func (f *fakeRunner) Complete(context.Context, *runner.Request) (*domain.AgentCompletion, error) {
	return f.completion, f.err
}

func TestAddInputsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rel := newFakeRelationalStore()
	svc := New(rel, newFakeAnalyticalStore())

	_, err := rel.CreateExperiment(ctx, 1, "exp-1", "agent-1", "Test")
	require.NoError(t, err)

	in := AliasedInput{Alias: "input-a", Input: domain.Input{AgentID: "agent-1", Messages: []map[string]any{{"role": "user"}}}}

	first, err := svc.AddInputs(ctx, 1, "exp-1", []AliasedInput{in})
	require.NoError(t, err)
	require.Equal(t, []string{"input-a"}, first)

	second, err := svc.AddInputs(ctx, 1, "exp-1", []AliasedInput{in})
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestStartCompletionRejectsDuplicateReservation(t *testing.T) {
	ctx := context.Background()
	rel := newFakeRelationalStore()
	svc := New(rel, newFakeAnalyticalStore())
	_, err := rel.CreateExperiment(ctx, 1, "exp-1", "agent-1", "Test")
	require.NoError(t, err)

	require.NoError(t, svc.StartCompletion(ctx, 1, "exp-1", "input-1", "version-1"))

	err = svc.StartCompletion(ctx, 1, "exp-1", "input-1", "version-1")
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindDuplicateValue, apiErr.Kind)
}

func TestRunStartedCompletionRunsAndRecordsOutput(t *testing.T) {
	ctx := context.Background()
	rel := newFakeRelationalStore()
	analytical := newFakeAnalyticalStore()
	svc := New(rel, analytical)

	_, err := rel.CreateExperiment(ctx, 1, "exp-1", "agent-1", "Test")
	require.NoError(t, err)

	in := domain.Input{AgentID: "agent-1", Messages: []map[string]any{{"role": "user", "parts": []any{map[string]any{"text": "hi"}}}}}
	inputID, _, err := rel.UpsertInput(ctx, 1, in)
	require.NoError(t, err)

	version := domain.Version{Model: "gpt-4o"}
	versionID, _, err := rel.UpsertVersion(ctx, 1, version)
	require.NoError(t, err)

	completionID := uuid.New()
	run := &fakeRunner{completion: &domain.AgentCompletion{ID: completionID, CostUSD: 0.05, DurationSeconds: 1.2}}

	payload := StartExperimentCompletionPayload{TenantUID: 1, ExperimentID: "exp-1", InputID: inputID, VersionID: versionID}
	require.NoError(t, svc.RunStartedCompletion(ctx, rel, run, payload))

	cost, err := svc.Cost(ctx, 1, "exp-1")
	require.NoError(t, err)
	require.InDelta(t, 0.05, cost, 0.0001)

	// Redelivery of the same event is a no-op, not an error.
	require.NoError(t, svc.RunStartedCompletion(ctx, rel, run, payload))
}
