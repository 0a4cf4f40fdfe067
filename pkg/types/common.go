package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	NO_PAGINATION = 0
)

const (
	LANGUAGE_EN_KEY = "en"
	LANGUAGE_CN_KEY = "zh-CN"
)

// blob 上传路径前缀
const FIXED_S3_UPLOAD_PATH_PREFIX = "/knowledge/files/"

// Metadata is stored as jsonb.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements the sql.Scanner interface.
func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch src := src.(type) {
	case []byte:
		raw = src
	case string:
		raw = []byte(src)
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("pq: cannot convert %T to Metadata", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Clone returns a shallow copy, nil safe.
func (m Metadata) Clone() Metadata {
	res := make(Metadata, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

// Equal compares the json form, so numeric types decoded from the database
// match the ones built in memory.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	a, err := json.Marshal(m)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return string(a) == string(b)
}
