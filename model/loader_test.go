package model

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recserve/core"
)

func writeArtifacts(t *testing.T, files map[string]any) string {
	t.Helper()
	dir := t.TempDir()
	for name, v := range files {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
	}
	return dir
}

func collaborativeFiles() map[string]any {
	return map[string]any{
		FileConfig: map[string]any{"model_type": "collaborative", "created_at": "2024-05-01T10:00:00", "n_users": 2, "n_items": 3},
		FileItems: []map[string]any{
			{"item_id": 0, "name": "a", "category": "Books", "price": 1.5},
			{"item_id": 1, "name": "b", "category": "Toys", "price": 2},
			{"item_id": 2, "name": "c", "category": "Books", "price": 3},
		},
		FileInteractions: map[string]any{
			"format": "csr", "shape": []int{2, 3},
			"indptr": []int{0, 1, 3}, "indices": []int{0, 1, 2}, "data": []float64{1, 1, 2},
		},
		FileModel: map[string]any{"capability": "factors", "components": [][]float64{{1, 0, 0}, {0, 1, 1}}},
	}
}

func TestLoad_Collaborative(t *testing.T) {
	dir := writeArtifacts(t, collaborativeFiles())

	b, err := Load(context.Background(), NewDirSource(dir))
	require.NoError(t, err)
	assert.Equal(t, core.ModelTypeCollaborative, b.Config.ModelType)
	assert.Equal(t, 3, b.Catalog.Len())
	assert.Equal(t, 2, b.Interactions.Rows())
	assert.Equal(t, CapabilityFactors, b.UserModel.Capability)
	assert.Nil(t, b.ItemModel)
	assert.NotEmpty(t, b.Version)

	// 相同产物得到相同版本
	again, err := Load(context.Background(), NewDirSource(dir))
	require.NoError(t, err)
	assert.Equal(t, b.Version, again.Version)
}

func TestLoad_ContentBased(t *testing.T) {
	files := collaborativeFiles()
	files[FileConfig] = map[string]any{"model_type": "content_based", "n_items": 3, "feature_dim": 4}
	delete(files, FileInteractions)
	delete(files, FileModel)
	files[FileSimilarity] = map[string]any{"format": "dense", "shape": []int{3, 3}, "rows": [][]float64{{1, 0.5, 0}, {0.5, 1, 0}, {0, 0, 1}}}

	b, err := Load(context.Background(), NewDirSource(writeArtifacts(t, files)))
	require.NoError(t, err)
	assert.Nil(t, b.UserModel)
	require.NotNil(t, b.ItemModel)
	assert.Equal(t, CapabilitySimilarity, b.ItemModel.Capability)
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		check  func(error) bool
	}{
		{"missing model", func(f map[string]any) { delete(f, FileModel) }, core.IsModelNotLoaded},
		{"missing config", func(f map[string]any) { delete(f, FileConfig) }, core.IsModelNotLoaded},
		{"users mismatch", func(f map[string]any) {
			f[FileConfig] = map[string]any{"model_type": "collaborative", "n_users": 5, "n_items": 3}
		}, core.IsDimensionMismatch},
		{"catalog mismatch", func(f map[string]any) {
			f[FileConfig] = map[string]any{"model_type": "collaborative", "n_users": 2, "n_items": 4}
		}, core.IsDimensionMismatch},
		{"factor items mismatch", func(f map[string]any) {
			f[FileModel] = map[string]any{"capability": "factors", "components": [][]float64{{1, 0}}}
		}, core.IsDimensionMismatch},
		{"unknown model type", func(f map[string]any) {
			f[FileConfig] = map[string]any{"model_type": "deep", "n_items": 3}
		}, core.IsInvalidInput},
		{"negative interaction", func(f map[string]any) {
			f[FileInteractions] = map[string]any{"format": "dense", "shape": []int{2, 3}, "rows": [][]float64{{0, -1, 0}, {0, 0, 0}}}
		}, core.IsInvalidInput},
		{"hybrid without similarity", func(f map[string]any) {
			f[FileConfig] = map[string]any{"model_type": "hybrid", "n_users": 2, "n_items": 3}
		}, core.IsModelNotLoaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := collaborativeFiles()
			tt.mutate(files)
			_, err := Load(context.Background(), NewDirSource(writeArtifacts(t, files)))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	raw, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func TestLoad_S3Source(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	for name, v := range collaborativeFiles() {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		fake.objects["models/prod/"+name] = raw
	}
	src := NewS3SourceWithClient(fake, "bucket", "models/prod")
	assert.Equal(t, "s3://bucket/models/prod", src.Name())

	b, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Catalog.Len())
	assert.Contains(t, fake.keys, "models/prod/model_config.json")

	_, err = src.ReadFile(context.Background(), FileSimilarity)
	assert.True(t, core.IsNotFound(err))
}
