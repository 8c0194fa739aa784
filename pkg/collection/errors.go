package collection

import "errors"

var (
	ErrCollectionName   = errors.New("collection name is required")
	ErrNoMasterKey      = errors.New("master key extractor is required")
	ErrEmptyMasterKey   = errors.New("entity has an empty master key")
	ErrIndexName        = errors.New("invalid index name")
	ErrNoExtractor      = errors.New("index extractor is required")
	ErrDuplicateIndex   = errors.New("index declared more than once")
	ErrUnsupportedIndex = errors.New("unsupported index shape")
	ErrUnknownIndex     = errors.New("index is not declared on this collection")
	ErrConflict         = errors.New("watched keys kept changing, retries exhausted")
)
