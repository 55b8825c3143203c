// Package experiment implements the Experiment/Deployment Service (C9): a
// thin, idempotent layer over the relational and analytical stores'
// content-addressed Input/Version registration and experiment-output
// bookkeeping, plus deployment alias management.
package experiment

import (
	"context"

	"github.com/google/uuid"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// relationalStore is the subset of runtime/store/relational.Store the
// service composes. Defined locally, narrowly, so this package never takes
// a hard dependency on the store's concrete type (the same convention used
// by runtime/security's apiKeyStore/tenantResolver/billingStore).
type relationalStore interface {
	UpsertInput(ctx context.Context, tenantUID int64, in domain.Input) (id string, inserted bool, err error)
	UpsertVersion(ctx context.Context, tenantUID int64, v domain.Version) (id string, inserted bool, err error)

	CreateExperiment(ctx context.Context, tenantUID int64, id, agentID, name string) (domain.Experiment, error)
	GetExperiment(ctx context.Context, tenantUID int64, id string) (domain.Experiment, error)
	AddExperimentInputs(ctx context.Context, tenantUID int64, experimentID string, inputs []domain.ExperimentInput) ([]string, error)
	AddExperimentVersions(ctx context.Context, tenantUID int64, experimentID string, versions []domain.ExperimentVersion) ([]string, error)
	ReserveExperimentOutput(ctx context.Context, tenantUID int64, experimentID, inputID, versionID string) error
	FinalizeExperimentOutput(ctx context.Context, tenantUID int64, experimentID, inputID, versionID string, completionID uuid.UUID) error

	UpsertDeployment(ctx context.Context, tenantUID int64, d domain.Deployment) (domain.Deployment, error)
	GetDeployment(ctx context.Context, tenantUID int64, name domain.DeploymentName) (domain.Deployment, error)
	ArchiveDeployment(ctx context.Context, tenantUID int64, name domain.DeploymentName) error
	ListDeployments(ctx context.Context, tenantUID int64, cursor string, limit int) ([]domain.Deployment, string, error)
}

// analyticalStore is the subset of runtime/store/analytical.Store the
// service composes, to denormalize cost/duration alongside the
// relationally-tracked output.
type analyticalStore interface {
	InsertExperimentOutputFact(ctx context.Context, tenantUID int64, experimentID string, out domain.ExperimentOutput, costUSD, durationSeconds float64) error
	ExperimentCost(ctx context.Context, tenantUID int64, experimentID string) (float64, error)
}

// Service implements C9 over a relational and analytical store pair.
type Service struct {
	relational relationalStore
	analytical analyticalStore
}

// New builds a Service backed by relational and analytical.
func New(relational relationalStore, analytical analyticalStore) *Service {
	return &Service{relational: relational, analytical: analytical}
}

// CreateExperiment creates an empty experiment shell for agentID.
func (s *Service) CreateExperiment(ctx context.Context, tenantUID int64, id, agentID, name string) (domain.Experiment, error) {
	return s.relational.CreateExperiment(ctx, tenantUID, id, agentID, name)
}

// GetExperiment loads experimentID with its full input/version/output sets.
func (s *Service) GetExperiment(ctx context.Context, tenantUID int64, experimentID string) (domain.Experiment, error) {
	return s.relational.GetExperiment(ctx, tenantUID, experimentID)
}

// AliasedInput pairs a user-facing alias with the input content it names.
type AliasedInput struct {
	Alias string
	Input domain.Input
}

// AddInputs upserts each input's content (idempotent by content hash) and
// registers it under its alias within experimentID. The returned aliases are
// exactly those newly registered against this experiment; re-adding an
// already-registered alias (even with different content) or re-adding
// identical content under an existing alias is silently ignored, per spec
// §4.6's "duplicates are silently ignored" idempotency requirement.
func (s *Service) AddInputs(ctx context.Context, tenantUID int64, experimentID string, aliased []AliasedInput) ([]string, error) {
	registrations := make([]domain.ExperimentInput, 0, len(aliased))
	for _, a := range aliased {
		id, _, err := s.relational.UpsertInput(ctx, tenantUID, a.Input)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, domain.ExperimentInput{Alias: a.Alias, InputID: id})
	}
	return s.relational.AddExperimentInputs(ctx, tenantUID, experimentID, registrations)
}

// AliasedVersion pairs a user-facing alias with the version content it names.
type AliasedVersion struct {
	Alias   string
	Version domain.Version
}

// AddVersions upserts each version's content and registers it under its
// alias within experimentID, mirroring AddInputs's idempotency.
func (s *Service) AddVersions(ctx context.Context, tenantUID int64, experimentID string, aliased []AliasedVersion) ([]string, error) {
	registrations := make([]domain.ExperimentVersion, 0, len(aliased))
	for _, a := range aliased {
		id, _, err := s.relational.UpsertVersion(ctx, tenantUID, a.Version)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, domain.ExperimentVersion{Alias: a.Alias, VersionID: id})
	}
	return s.relational.AddExperimentVersions(ctx, tenantUID, experimentID, registrations)
}

// StartCompletion marks (inputID, versionID) as in-flight within
// experimentID. Reinvocation on a pair already started or finished raises
// apierror.KindDuplicateValue.
func (s *Service) StartCompletion(ctx context.Context, tenantUID int64, experimentID, inputID, versionID string) error {
	return s.relational.ReserveExperimentOutput(ctx, tenantUID, experimentID, inputID, versionID)
}

// AddCompletionOutput sets the terminal completionID for a pair previously
// started with StartCompletion, and records its cost/duration in the
// analytical store for fast aggregate queries. A second call on the same
// pair raises apierror.KindDuplicateValue.
func (s *Service) AddCompletionOutput(
	ctx context.Context,
	tenantUID int64,
	experimentID, inputID, versionID string,
	completionID uuid.UUID,
	costUSD, durationSeconds float64,
) error {
	if err := s.relational.FinalizeExperimentOutput(ctx, tenantUID, experimentID, inputID, versionID, completionID); err != nil {
		return err
	}
	out := domain.ExperimentOutput{InputID: inputID, VersionID: versionID, CompletionID: completionID}
	return s.analytical.InsertExperimentOutputFact(ctx, tenantUID, experimentID, out, costUSD, durationSeconds)
}

// Cost sums the recorded cost of every completion attached to experimentID.
func (s *Service) Cost(ctx context.Context, tenantUID int64, experimentID string) (float64, error) {
	return s.analytical.ExperimentCost(ctx, tenantUID, experimentID)
}

// UpsertDeployment binds name to versionID, rotating the pointer if the
// alias already exists.
func (s *Service) UpsertDeployment(ctx context.Context, tenantUID int64, d domain.Deployment) (domain.Deployment, error) {
	return s.relational.UpsertDeployment(ctx, tenantUID, d)
}

// GetDeployment fetches a single deployment by name.
func (s *Service) GetDeployment(ctx context.Context, tenantUID int64, name domain.DeploymentName) (domain.Deployment, error) {
	return s.relational.GetDeployment(ctx, tenantUID, name)
}

// ArchiveDeployment flags a deployment archived without deleting it.
func (s *Service) ArchiveDeployment(ctx context.Context, tenantUID int64, name domain.DeploymentName) error {
	return s.relational.ArchiveDeployment(ctx, tenantUID, name)
}

// ListDeployments returns a cursor-paginated page of deployments.
func (s *Service) ListDeployments(ctx context.Context, tenantUID int64, cursor string, limit int) ([]domain.Deployment, string, error) {
	if limit <= 0 {
		return nil, "", apierror.BadRequest("limit must be positive")
	}
	return s.relational.ListDeployments(ctx, tenantUID, cursor, limit)
}
