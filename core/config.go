package core

// ModelType 是模型配置中声明的模型类型
type ModelType string

const (
	ModelTypeCollaborative ModelType = "collaborative"
	ModelTypeContentBased  ModelType = "content_based"
	ModelTypeHybrid        ModelType = "hybrid"
)

// Valid 判断模型类型是否可识别
func (t ModelType) Valid() bool {
	switch t {
	case ModelTypeCollaborative, ModelTypeContentBased, ModelTypeHybrid:
		return true
	}
	return false
}

// UsesInteractions 表示该类型需要用户×物品交互矩阵与用户侧模型
func (t ModelType) UsesInteractions() bool {
	return t == ModelTypeCollaborative || t == ModelTypeHybrid
}

// UsesSimilarity 表示该类型需要物品×物品相似度矩阵
func (t ModelType) UsesSimilarity() bool {
	return t == ModelTypeContentBased || t == ModelTypeHybrid
}

// ModelConfig 对应模型目录中的 model_config.json。
// 这里记录的维度必须与加载出的矩阵完全一致，不一致视为加载失败。
type ModelConfig struct {
	ModelType  ModelType `json:"model_type"`
	CreatedAt  string    `json:"created_at,omitempty"` // 训练侧写入的 ISO 时间，原样透传
	NUsers     int       `json:"n_users,omitempty"`
	NItems     int       `json:"n_items"`
	FeatureDim int       `json:"feature_dim,omitempty"`
	Features   []string  `json:"features,omitempty"`
}

// Validate 检查配置本身是否自洽（不涉及矩阵）
func (c *ModelConfig) Validate() error {
	if c == nil {
		return NewDomainError(ModuleModel, ErrorCodeModelNotLoaded, "model config missing")
	}
	if !c.ModelType.Valid() {
		return Errorf(ModuleModel, ErrorCodeInvalidInput, "unknown model_type %q", c.ModelType)
	}
	if c.NItems <= 0 {
		return Errorf(ModuleModel, ErrorCodeDimensionMismatch, "n_items must be positive, got %d", c.NItems)
	}
	if c.ModelType.UsesInteractions() && c.NUsers <= 0 {
		return Errorf(ModuleModel, ErrorCodeDimensionMismatch, "n_users must be positive for %s, got %d", c.ModelType, c.NUsers)
	}
	if c.FeatureDim < 0 {
		return Errorf(ModuleModel, ErrorCodeDimensionMismatch, "feature_dim must not be negative, got %d", c.FeatureDim)
	}
	return nil
}

// Dimensions 是 health 中对外暴露的维度信息
type Dimensions struct {
	NUsers     int `json:"n_users"`
	NItems     int `json:"n_items"`
	FeatureDim int `json:"feature_dim,omitempty"`
}

func (c *ModelConfig) Dimensions() Dimensions {
	return Dimensions{NUsers: c.NUsers, NItems: c.NItems, FeatureDim: c.FeatureDim}
}
