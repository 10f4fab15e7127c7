package model

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rushteam/recserve/core"
)

// Source 是模型产物的来源（本地目录、S3 前缀等）。
// 文件不存在时 ReadFile 返回 NOT_FOUND 领域错误，便于区分可选产物。
type Source interface {
	Name() string
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// DirSource 从本地目录读取产物
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (s *DirSource) Name() string { return "dir:" + s.Dir }

func (s *DirSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeNotFound, "%s not found in %s", name, s.Dir)
	}
	return data, err
}

var _ Source = (*DirSource)(nil)
