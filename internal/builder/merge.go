package builder

// DeepMerge 将 delta 合并进 dst 并返回 dst。合并规则：
//   - 标量值直接覆盖
//   - 数组整体替换，绝不拼接
//   - 嵌套map按键递归合并
//   - delta 中显式的 nil 值删除对应键（用于清除临时持有记录）
//
// 同一delta重复合并是幂等的。
func DeepMerge(dst CollectedData, delta CollectedData) CollectedData {
	if dst == nil {
		dst = CollectedData{}
	}
	for k, v := range delta {
		if v == nil {
			delete(dst, k)
			continue
		}
		dm, dstIsMap := asMap(dst[k])
		vm, deltaIsMap := asMap(v)
		if dstIsMap && deltaIsMap {
			dst[k] = map[string]interface{}(DeepMerge(dm, vm))
			continue
		}
		dst[k] = v
	}
	return dst
}

// asMap 将值规整为CollectedData。会话经过JSON往返后嵌套map的具体类型
// 是map[string]interface{}，两种形式都要接受。
func asMap(v interface{}) (CollectedData, bool) {
	switch m := v.(type) {
	case CollectedData:
		return m, true
	case map[string]interface{}:
		return CollectedData(m), true
	default:
		return nil, false
	}
}
