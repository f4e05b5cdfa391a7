package cache

import (
	"encoding/json"
	"time"
)

// CalcRecord memoizes one calculator result.
type CalcRecord struct {
	Key        string    `json:"key"`
	Calculator string    `json:"calculator"`
	Branch     string    `json:"branch"`
	Value      int64     `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DedupRecord marks one deny payload as recently delivered.
type DedupRecord struct {
	Key       string    `json:"key"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for CalcRecord
func (r *CalcRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for CalcRecord
func (r *CalcRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// MarshalBinary implements encoding.BinaryMarshaler for DedupRecord
func (r *DedupRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for DedupRecord
func (r *DedupRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// IsExpired checks if the record has expired
func (r *CalcRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsExpired checks if the record has expired
func (r *DedupRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
