package core

import "fmt"

// Item 是训练链路中的物品承载结构：唯一 ID + 文本标题 + 元信息。
// Title 是内容塔的唯一输入；Meta 用于透传业务字段（类目、品牌等）。
type Item struct {
	ID    int64
	Title string
	Meta  map[string]any
}

func NewItem(id int64, title string) *Item {
	return &Item{
		ID:    id,
		Title: title,
		Meta:  make(map[string]any),
	}
}

// Catalog 是一次训练运行内不可变的有序物品目录。
//
// 设计要点：
//   - 顺序即索引：模型内部全部使用 [0, Len) 的物品下标，ID 只在边界处出现
//   - 构造后只读：目录会被分词一次并在多个模型副本间共享，不允许原地修改
//   - ID 唯一：重复 ID 在构造时报错，避免训练后无法回查
type Catalog struct {
	items []*Item
	byID  map[int64]int
}

// NewCatalog 根据有序物品列表构建目录。ID 重复时返回错误。
func NewCatalog(items []*Item) (*Catalog, error) {
	byID := make(map[int64]int, len(items))
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("catalog: nil item at position %d", i)
		}
		if _, ok := byID[it.ID]; ok {
			return nil, fmt.Errorf("catalog: duplicate item id %d", it.ID)
		}
		byID[it.ID] = i
	}
	return &Catalog{items: items, byID: byID}, nil
}

// Len 返回目录中的物品数量。
func (c *Catalog) Len() int { return len(c.items) }

// At 返回下标 i 处的物品。
func (c *Catalog) At(i int) *Item { return c.items[i] }

// IndexOf 返回物品 ID 对应的目录下标。
func (c *Catalog) IndexOf(id int64) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// Titles 按目录顺序返回全部标题，供分词器一次性编码。
func (c *Catalog) Titles() []string {
	titles := make([]string, len(c.items))
	for i, it := range c.items {
		titles[i] = it.Title
	}
	return titles
}
