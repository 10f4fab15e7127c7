package core

// ItemRecord 是目录中的一条物品元数据。
// ItemID 是 0..N-1 的稠密下标，与其在目录中的位置一致。
type ItemRecord struct {
	ItemID          int      `json:"item_id"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Price           float64  `json:"price"`
	Rating          *float64 `json:"rating,omitempty"`
	PopularityScore *float64 `json:"popularity_score,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
}

// Catalog 是一次模型加载对应的物品目录，加载后只读。
// 重新加载时整体替换，不做字段级修改。
type Catalog struct {
	items      []ItemRecord
	categories []string
}

// NewCatalog 校验并构建目录。
// 要求 items[i].ItemID == i，价格非负。
func NewCatalog(items []ItemRecord) (*Catalog, error) {
	seen := make(map[string]struct{})
	cats := make([]string, 0)
	out := make([]ItemRecord, len(items))
	for i, it := range items {
		if it.ItemID != i {
			return nil, Errorf(ModuleCatalog, ErrorCodeDimensionMismatch,
				"item at position %d has item_id %d", i, it.ItemID)
		}
		if it.Price < 0 {
			return nil, Errorf(ModuleCatalog, ErrorCodeInvalidInput,
				"item %d has negative price %v", i, it.Price)
		}
		if _, ok := seen[it.Category]; !ok && it.Category != "" {
			seen[it.Category] = struct{}{}
			cats = append(cats, it.Category)
		}
		out[i] = it
	}
	return &Catalog{items: out, categories: cats}, nil
}

// Len 返回物品数量 N
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Get 按 item_id 查找；越界时返回 false（用于识别过期引用）。
func (c *Catalog) Get(id int) (ItemRecord, bool) {
	if c == nil || id < 0 || id >= len(c.items) {
		return ItemRecord{}, false
	}
	return c.items[id], true
}

// Items 返回只读视图，调用方不得修改。
func (c *Catalog) Items() []ItemRecord {
	if c == nil {
		return nil
	}
	return c.items
}

// Categories 按首次出现顺序返回所有类目
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	return c.categories
}
