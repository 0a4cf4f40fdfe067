package types

// KnowledgeSource is an owner-scoped container feeding one retrieval index.
type KnowledgeSource struct {
	ID            string `json:"id" db:"id"`
	OwnerID       string `json:"owner_id" db:"owner_id"`
	Name          string `json:"name" db:"name"`
	Description   string `json:"description" db:"description"`
	VectorIndexID string `json:"vector_index_id" db:"vector_index_id"` // 空字符串表示尚未建立向量索引
	LastSyncedAt  int64  `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt     int64  `json:"created_at" db:"created_at"`
	UpdatedAt     int64  `json:"updated_at" db:"updated_at"`
}

// GenVectorIndexID names the vector partition of a source.
func GenVectorIndexID(sourceID string) string {
	return "ks_" + sourceID
}
