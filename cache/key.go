package cache

import (
	"slices"
	"strconv"
	"strings"
)

const keyPrefix = "rec"

// UserKey 生成个性化请求的缓存 key。
// exclude 会排序去重，因此顺序和重复不影响 key。
//
//	rec:{version}:user:{id}:n:{n}:exclude:{1,5,9}
func UserKey(version string, userID, n int, exclude []int) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(version)
	b.WriteString(":user:")
	b.WriteString(strconv.Itoa(userID))
	b.WriteString(":n:")
	b.WriteString(strconv.Itoa(n))
	b.WriteString(":exclude:")
	for i, id := range normalizeIDs(exclude) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

// SimilarKey 生成相似物品请求的缓存 key
//
//	rec:{version}:similar:{id}:n:{n}
func SimilarKey(version string, itemID, n int) string {
	return keyPrefix + ":" + version + ":similar:" + strconv.Itoa(itemID) + ":n:" + strconv.Itoa(n)
}

// PopularKey 生成热门请求的缓存 key。类目做 Go 字符串转义，避免含 ':' 的类目与其他 key 冲突。
//
//	rec:{version}:popular:n:{n}:cat:"Books"
func PopularKey(version string, n int, category string) string {
	return keyPrefix + ":" + version + ":popular:n:" + strconv.Itoa(n) + ":cat:" + strconv.Quote(category)
}

func normalizeIDs(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
