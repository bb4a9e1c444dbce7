// internal/server/types.go
package server

import (
	"encoding/json"
	"strings"

	"wiresum/internal/database"
)

type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// DigestGroup is one interest bucket. The "Other" bucket has a nil key.
type DigestGroup struct {
	InterestKey   *string          `json:"interest_key"`
	InterestLabel string           `json:"interest_label"`
	Count         int              `json:"count"`
	Entries       []database.Entry `json:"entries"`
}

type ConfigResponse struct {
	ClassificationPrompt string `json:"classification_prompt"`
	Model                string `json:"model"`
	SyncInterval         int    `json:"sync_interval"`
	ProcessAfter         string `json:"process_after"`
	UserContext          string `json:"user_context"`
}

// ConfigUpdate accepts the value as a JSON string or a bare number.
type ConfigUpdate struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (u ConfigUpdate) StringValue() (string, bool) {
	raw := strings.TrimSpace(string(u.Value))
	if raw == "" || raw == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(u.Value, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(u.Value, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

type ConfigUpdateResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

type InterestCreate struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Description *string `json:"description"`
}

type InterestUpdate struct {
	Label       *string `json:"label"`
	Description *string `json:"description"`
}

type SyncResponse struct {
	Status string `json:"status"`
	Synced int    `json:"synced"`
	Error  string `json:"error,omitempty"`
}

type ClassifyResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
}

type RequeueResponse struct {
	Status   string `json:"status"`
	Requeued int    `json:"requeued"`
}
