package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuestionKey returns the cache key for a question's answer key hash
// (correct answer, weight and owning exam).
func (r *CacheKeyStruct) QuestionKey(questionID string) string {
	return fmt.Sprintf("question:%s:key", questionID)
}

// SweepLeaseKey returns the key guarding a single overdue sweep across replicas.
func (r *CacheKeyStruct) SweepLeaseKey() string {
	return "attempts:sweeper:lease"
}

var CacheKey = NewCacheKeyStruct()
