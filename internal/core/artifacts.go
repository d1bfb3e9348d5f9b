package core

import (
	"context"
	"fmt"
	"io"

	artifactcore "searchcore/internal/infra/artifact/core"
)

// ArtifactStore is the storage backend for trial artifacts (checkpoints,
// logs, rendered plots).
type ArtifactStore = artifactcore.Store

// ArtifactInfo describes one stored trial artifact.
type ArtifactInfo = artifactcore.Info

// ArtifactPutOptions carries optional upload parameters.
type ArtifactPutOptions = artifactcore.PutOptions

// WithArtifactStore attaches an artifact backend to the service. Artifact
// operations fail until one is configured.
func WithArtifactStore(store ArtifactStore) Option {
	return func(s *Service) {
		s.artifacts = store
	}
}

func (s *Service) artifactStore() (ArtifactStore, error) {
	if s.artifacts == nil {
		return nil, fmt.Errorf("no artifact store configured")
	}
	return s.artifacts, nil
}

// SaveTrialArtifact uploads a named artifact for the trial. Artifacts are
// immutable; re-uploading an existing name fails.
func (s *Service) SaveTrialArtifact(ctx context.Context, trialID, name string, r io.Reader, opts ArtifactPutOptions) (ArtifactInfo, error) {
	var info ArtifactInfo
	err := s.instrument(ctx, "save_trial_artifact", func(ctx context.Context) error {
		store, err := s.artifactStore()
		if err != nil {
			return err
		}
		trial, ok := s.store.GetTrial(trialID)
		if !ok {
			return ErrNotFound{Entity: EntityTrial, ID: trialID}
		}
		info, err = store.Put(ctx, artifactcore.Key(trial.ExperimentID, trialID, name), r, opts)
		return err
	})
	if err != nil {
		return ArtifactInfo{}, err
	}
	return info, nil
}

// OpenTrialArtifact streams a named artifact of the trial.
func (s *Service) OpenTrialArtifact(ctx context.Context, trialID, name string) (ArtifactInfo, io.ReadCloser, error) {
	var info ArtifactInfo
	var rc io.ReadCloser
	err := s.instrument(ctx, "open_trial_artifact", func(ctx context.Context) error {
		store, err := s.artifactStore()
		if err != nil {
			return err
		}
		trial, ok := s.store.GetTrial(trialID)
		if !ok {
			return ErrNotFound{Entity: EntityTrial, ID: trialID}
		}
		info, rc, err = store.Get(ctx, artifactcore.Key(trial.ExperimentID, trialID, name))
		return err
	})
	if err != nil {
		return ArtifactInfo{}, nil, err
	}
	return info, rc, nil
}

// ListTrialArtifacts enumerates everything stored for the trial.
func (s *Service) ListTrialArtifacts(ctx context.Context, trialID string) ([]ArtifactInfo, error) {
	var infos []ArtifactInfo
	err := s.instrument(ctx, "list_trial_artifacts", func(ctx context.Context) error {
		store, err := s.artifactStore()
		if err != nil {
			return err
		}
		trial, ok := s.store.GetTrial(trialID)
		if !ok {
			return ErrNotFound{Entity: EntityTrial, ID: trialID}
		}
		infos, err = store.List(ctx, artifactcore.TrialPrefix(trial.ExperimentID, trialID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// PresignTrialArtifact returns a time-limited download URL for the artifact
// when the backend supports it.
func (s *Service) PresignTrialArtifact(ctx context.Context, trialID, name string, opts artifactcore.SignedURLOptions) (string, error) {
	var url string
	err := s.instrument(ctx, "presign_trial_artifact", func(ctx context.Context) error {
		store, err := s.artifactStore()
		if err != nil {
			return err
		}
		trial, ok := s.store.GetTrial(trialID)
		if !ok {
			return ErrNotFound{Entity: EntityTrial, ID: trialID}
		}
		url, err = store.PresignURL(ctx, artifactcore.Key(trial.ExperimentID, trialID, name), opts)
		return err
	})
	if err != nil {
		return "", err
	}
	return url, nil
}
