package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/secrets"

	"go.uber.org/zap"
)

// ErrConfigMissing is returned when a required option has no value and no
// default. It aborts the run.
var ErrConfigMissing = errors.New("configuration missing")

// Option names read from the secret store.
const (
	OptionProjectID = "project_id"
	OptionDataset   = "dataset"
	OptionBucket    = "bucket"
	OptionFiles     = "files"
)

// OptionNames lists every option the resolver understands.
var OptionNames = []string{OptionProjectID, OptionDataset, OptionBucket, OptionFiles}

var defaults = map[string]string{
	OptionDataset: "challenge",
	OptionBucket:  "bixlabs-challenge-bucket",
	OptionFiles:   strings.Join(domain.DefaultFiles, ","),
}

// Settings is the configuration of a single run.
type Settings struct {
	ProjectID string   `json:"projectId"`
	Dataset   string   `json:"dataset"`
	Bucket    string   `json:"bucket"`
	Files     []string `json:"files"`
}

// Resolver fetches run settings from a secret store at invocation time.
type Resolver struct {
	store secrets.Store
	// environmentProject is the project of the invocation context, used when
	// the store has no project_id.
	environmentProject string
	log                *zap.Logger
}

// NewResolver wires a resolver over store.
func NewResolver(store secrets.Store, environmentProject string, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		store:              store,
		environmentProject: strings.TrimSpace(environmentProject),
		log:                log.Named("config"),
	}
}

// Resolve returns the value of one option. It fails with ErrConfigMissing only
// when the store has no value and the option has no default.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	if r.store != nil {
		value, err := r.store.Get(ctx, name)
		switch {
		case err == nil && strings.TrimSpace(value) != "":
			r.log.Debug("resolved option from secret store", zap.String("option", name))
			return strings.TrimSpace(value), nil
		case err != nil && !errors.Is(err, secrets.ErrNotFound):
			r.log.Warn("secret store read failed", zap.String("option", name), zap.Error(err))
		}
	}

	if name == OptionProjectID && r.environmentProject != "" {
		r.log.Info("using project from environment", zap.String("project_id", r.environmentProject))
		return r.environmentProject, nil
	}

	if value, ok := defaults[name]; ok {
		r.log.Info("using default option value", zap.String("option", name), zap.String("value", value))
		return value, nil
	}

	return "", fmt.Errorf("%w: %s", ErrConfigMissing, name)
}

// Settings resolves every option into a run configuration.
func (r *Resolver) Settings(ctx context.Context) (Settings, error) {
	projectID, err := r.Resolve(ctx, OptionProjectID)
	if err != nil {
		return Settings{}, err
	}
	dataset, err := r.Resolve(ctx, OptionDataset)
	if err != nil {
		return Settings{}, err
	}
	bucket, err := r.Resolve(ctx, OptionBucket)
	if err != nil {
		return Settings{}, err
	}
	rawFiles, err := r.Resolve(ctx, OptionFiles)
	if err != nil {
		return Settings{}, err
	}

	files := ParseFileList(rawFiles)
	if len(files) == 0 {
		files = append([]string(nil), domain.DefaultFiles...)
	}

	settings := Settings{
		ProjectID: projectID,
		Dataset:   dataset,
		Bucket:    bucket,
		Files:     files,
	}
	r.log.Info("configuration resolved",
		zap.String("project_id", settings.ProjectID),
		zap.String("dataset", settings.Dataset),
		zap.String("bucket", settings.Bucket),
		zap.Strings("files", settings.Files),
	)
	return settings, nil
}

// ParseFileList splits a comma separated list, dropping blanks.
func ParseFileList(raw string) []string {
	var files []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			files = append(files, name)
		}
	}
	return files
}
