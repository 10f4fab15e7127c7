package model

import (
	"github.com/goccy/go-json"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/matrix"
)

// 模型目录中的产物文件名
const (
	FileConfig       = "model_config.json"
	FileItems        = "items.json"
	FileInteractions = "interactions.json"
	FileModel        = "model.json"
	FileSimilarity   = "similarity.json"
)

// matrixArtifact 是矩阵的序列化形式。
//
//	{"format": "csr", "shape": [r, c], "indptr": [...], "indices": [...], "data": [...]}
//	{"format": "dense", "shape": [r, c], "rows": [[...], ...]}
type matrixArtifact struct {
	Format  string      `json:"format"`
	Shape   [2]int      `json:"shape"`
	Indptr  []int       `json:"indptr,omitempty"`
	Indices []int       `json:"indices,omitempty"`
	Data    []float64   `json:"data,omitempty"`
	Rows    [][]float64 `json:"rows,omitempty"`
}

func decodeMatrix(name string, raw []byte) (matrix.Matrix, error) {
	var art matrixArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "decode %s: %v", name, err)
	}
	switch art.Format {
	case "csr", "sparse":
		return matrix.NewCSR(art.Shape[0], art.Shape[1], art.Indptr, art.Indices, art.Data)
	case "dense", "":
		m, err := matrix.NewDenseRows(art.Rows)
		if err != nil {
			return nil, err
		}
		if art.Shape != [2]int{} && (m.Rows() != art.Shape[0] || m.Cols() != art.Shape[1]) {
			return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
				"%s declares shape %v, rows give %dx%d", name, art.Shape, m.Rows(), m.Cols())
		}
		return m, nil
	}
	return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "%s: unknown matrix format %q", name, art.Format)
}

// modelArtifact 是 model.json：能力标签 + 对应参数
type modelArtifact struct {
	Capability Capability `json:"capability"`

	// factors
	Components [][]float64 `json:"components,omitempty"`
	Iterations int         `json:"iterations,omitempty"`

	// pairwise-predict
	GlobalMean  float64     `json:"global_mean,omitempty"`
	UserBias    []float64   `json:"user_bias,omitempty"`
	ItemBias    []float64   `json:"item_bias,omitempty"`
	UserFactors [][]float64 `json:"user_factors,omitempty"`
	ItemFactors [][]float64 `json:"item_factors,omitempty"`
}

func decodeHandle(raw []byte) (*Handle, error) {
	var art modelArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "decode %s: %v", FileModel, err)
	}
	switch art.Capability {
	case CapabilityFactors:
		f, err := NewFactorization(art.Components)
		if err != nil {
			return nil, err
		}
		if art.Iterations > 0 {
			f.Iterations = art.Iterations
		}
		return &Handle{Capability: CapabilityFactors, Factors: f}, nil
	case CapabilityPairwise:
		mf := &BiasedMF{
			GlobalMean:  art.GlobalMean,
			UserBias:    art.UserBias,
			ItemBias:    art.ItemBias,
			UserFactors: art.UserFactors,
			ItemFactors: art.ItemFactors,
		}
		if err := mf.Validate(); err != nil {
			return nil, err
		}
		return &Handle{Capability: CapabilityPairwise, Pairwise: mf}, nil
	case CapabilitySimilarity:
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput,
			"similarity models are read from %s, not %s", FileSimilarity, FileModel)
	}
	return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "unknown capability %q", art.Capability)
}
