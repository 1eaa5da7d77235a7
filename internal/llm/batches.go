package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Batch processing statuses reported by the provider.
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusEnded      = "ended"
)

// BatchRequest is one entry of a batch submission. CustomID ties the
// provider-side result back to the logical unit it was generated for.
type BatchRequest struct {
	CustomID string         `json:"custom_id"`
	Params   MessageRequest `json:"params"`
}

// RequestCounts itemizes the per-request progress of a batch.
type RequestCounts struct {
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Errored    int `json:"errored"`
	Canceled   int `json:"canceled"`
	Expired    int `json:"expired"`
}

// BatchStatus is the provider's view of one batch.
type BatchStatus struct {
	ID               string        `json:"id"`
	ProcessingStatus string        `json:"processing_status"`
	RequestCounts    RequestCounts `json:"request_counts"`
	ResultsURL       string        `json:"results_url,omitempty"`
}

// SubmitBatch submits a bulk-generation batch and returns the opaque
// provider-assigned batch id.
func (c *Client) SubmitBatch(ctx context.Context, requests []BatchRequest) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("empty batch submission")
	}

	body, err := json.Marshal(map[string]any{"requests": requests})
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	prefix := fmt.Sprintf("[batch:%d reqs] ", len(requests))
	respBody, err := c.post(ctx, batchesPath, body, prefix)
	if err != nil {
		return "", err
	}

	var status BatchStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return "", fmt.Errorf("decode batch response: %w", err)
	}
	if status.ID == "" {
		return "", fmt.Errorf("provider returned no batch id")
	}

	c.logger.Info("submitted batch %s with %d requests", status.ID, len(requests))
	return status.ID, nil
}

// GetBatchStatus polls the provider for the batch's current state.
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	prefix := fmt.Sprintf("[batch:%s] ", batchID)
	respBody, err := c.get(ctx, batchesPath+"/"+batchID, prefix)
	if err != nil {
		return nil, err
	}

	var status BatchStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("decode batch status: %w", err)
	}
	return &status, nil
}

// CancelBatch asks the provider to cancel an in-flight batch. Used as
// best-effort compensation when a submitted batch cannot be recorded
// locally.
func (c *Client) CancelBatch(ctx context.Context, batchID string) error {
	prefix := fmt.Sprintf("[batch:%s] ", batchID)
	_, err := c.post(ctx, batchesPath+"/"+batchID+"/cancel", []byte("{}"), prefix)
	return err
}
