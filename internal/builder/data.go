package builder

// CollectedData 的读取辅助方法。会话在Redis中以JSON存储，
// 读回后数值是float64、列表是[]interface{}，这里统一处理。

// String 读取字符串字段，缺失或类型不符返回空串
func (d CollectedData) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Int 读取整数字段，兼容JSON反序列化产生的float64
func (d CollectedData) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Map 读取嵌套记录，缺失时返回nil
func (d CollectedData) Map(key string) CollectedData {
	m, _ := asMap(d[key])
	return m
}

// List 读取列表字段，缺失时返回nil
func (d CollectedData) List(key string) []interface{} {
	switch v := d[key].(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// StringList 读取字符串列表，忽略非字符串元素
func (d CollectedData) StringList(key string) []string {
	raw := d.List(key)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// appendToList 返回在现有列表末尾追加一个元素后的新列表副本
func appendToList(existing []interface{}, item interface{}) []interface{} {
	out := make([]interface{}, 0, len(existing)+1)
	out = append(out, existing...)
	out = append(out, item)
	return out
}
