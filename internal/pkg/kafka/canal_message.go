package kafka

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// canal 变更类型
const (
	INSERT = "INSERT"
	UPDATE = "UPDATE"
	DELETE = "DELETE"
)

// CanalMessage 定义了 Canal 推送到 Kafka 的 JSON 数据结构
type CanalMessage struct {
	ID       int64    `json:"id"`
	Database string   `json:"database"`
	Table    string   `json:"table"`
	PKNames  []string `json:"pkNames"`
	IsDDL    bool     `json:"isDdl"`
	Type     string   `json:"type"`
	ES       int64    `json:"es"`
	TS       int64    `json:"ts"`
	SQL      string   `json:"sql"`

	// Data 存储变更后的数据
	Data []map[string]interface{} `json:"data"`

	// Old 存储变更前的数据，只包含发生变化的列
	Old []map[string]interface{} `json:"old"`

	SqlType   map[string]int    `json:"sqlType"`
	MysqlType map[string]string `json:"mysqlType"`
}

// OldHas 第 i 行的变更是否涉及 column
func (m *CanalMessage) OldHas(i int, column string) bool {
	if i >= len(m.Old) || m.Old[i] == nil {
		return false
	}
	_, ok := m.Old[i][column]
	return ok
}

// canal flat message 中的值都是字符串，null 为 nil
func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// StrToUint64 解析 canal 列值为 uint64，非法值返回 0
func StrToUint64(v interface{}) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(toString(v)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// StrToBool tinyint(1) 列
func StrToBool(v interface{}) bool {
	switch strings.ToLower(strings.TrimSpace(toString(v))) {
	case "1", "true":
		return true
	}
	return false
}

var canalTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// StrToTime datetime 列按 loc 解析
func StrToTime(v interface{}, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	for _, layout := range canalTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime %q", s)
}
