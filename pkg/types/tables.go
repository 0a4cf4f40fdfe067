package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "quka_"

const (
	TABLE_KNOWLEDGE_SOURCE = TableName("knowledge_source")
	TABLE_CONTENT_ITEM     = TableName("content_item")
	TABLE_EMBEDDING_JOB    = TableName("embedding_job")
	TABLE_VECTOR_DOCUMENT  = TableName("vector_document")
)
