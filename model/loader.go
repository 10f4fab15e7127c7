package model

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/matrix"
)

// versionSpace 是模型版本 UUID(v5) 的命名空间。
// 同一组产物字节总是得到同一个版本号，多实例共享缓存时 key 一致。
var versionSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/rushteam/recserve/model"))

// Bundle 是一次加载得到的全部产物，尚未绑定为可服务的快照。
type Bundle struct {
	Version string
	Source  string

	Config       core.ModelConfig
	Catalog      *core.Catalog
	Interactions matrix.Matrix // collaborative / hybrid
	UserModel    *Handle       // factors 或 pairwise-predict
	ItemModel    *Handle       // similarity
}

// Load 从 src 读取并校验全部产物。
// model_type 决定哪些文件必需；任何必需文件缺失或维度与 model_config.json 不一致都会失败。
func Load(ctx context.Context, src Source) (*Bundle, error) {
	if src == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeModelNotLoaded, "no model source configured")
	}
	digest := make([]byte, 0, 4096)
	read := func(name string) ([]byte, error) {
		raw, err := src.ReadFile(ctx, name)
		if err != nil {
			if core.IsNotFound(err) {
				return nil, core.Errorf(core.ModuleModel, core.ErrorCodeModelNotLoaded,
					"required artifact %s missing from %s", name, src.Name())
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		digest = append(digest, name...)
		digest = append(digest, raw...)
		return raw, nil
	}

	b := &Bundle{Source: src.Name()}

	raw, err := read(FileConfig)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &b.Config); err != nil {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "decode %s: %v", FileConfig, err)
	}
	if err := b.Config.Validate(); err != nil {
		return nil, err
	}
	n := b.Config.NItems

	raw, err = read(FileItems)
	if err != nil {
		return nil, err
	}
	var items []core.ItemRecord
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "decode %s: %v", FileItems, err)
	}
	if b.Catalog, err = core.NewCatalog(items); err != nil {
		return nil, err
	}
	if b.Catalog.Len() != n {
		return nil, mismatch(FileItems, "items", b.Catalog.Len(), n)
	}

	if b.Config.ModelType.UsesInteractions() {
		if raw, err = read(FileInteractions); err != nil {
			return nil, err
		}
		if b.Interactions, err = decodeMatrix(FileInteractions, raw); err != nil {
			return nil, err
		}
		if err := matrix.NonNegative(b.Interactions); err != nil {
			return nil, err
		}
		if b.Interactions.Rows() != b.Config.NUsers {
			return nil, mismatch(FileInteractions, "rows", b.Interactions.Rows(), b.Config.NUsers)
		}
		if b.Interactions.Cols() != n {
			return nil, mismatch(FileInteractions, "columns", b.Interactions.Cols(), n)
		}

		if raw, err = read(FileModel); err != nil {
			return nil, err
		}
		if b.UserModel, err = decodeHandle(raw); err != nil {
			return nil, err
		}
		if got := b.UserModel.Items(); got != n {
			return nil, mismatch(FileModel, "items", got, n)
		}
	}

	if b.Config.ModelType.UsesSimilarity() {
		if raw, err = read(FileSimilarity); err != nil {
			return nil, err
		}
		sim, err := decodeMatrix(FileSimilarity, raw)
		if err != nil {
			return nil, err
		}
		if sim.Rows() != n || sim.Cols() != n {
			return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
				"%s is %dx%d, model_config.json declares %d items", FileSimilarity, sim.Rows(), sim.Cols(), n)
		}
		b.ItemModel = &Handle{Capability: CapabilitySimilarity, Similarity: sim}
	}

	b.Version = uuid.NewSHA1(versionSpace, digest).String()
	return b, nil
}

func mismatch(file, what string, got, want int) error {
	return core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
		"%s has %d %s, model_config.json declares %d", file, got, what, want)
}
