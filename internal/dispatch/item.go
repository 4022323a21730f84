package dispatch

import (
	"encoding/json"
	"fmt"
)

// WorkItem is the transient unit of work handed to the dispatch queue.
// It carries everything a worker needs to perform one delivery attempt and is
// fully reconstructible from the delivery row, which is what makes the queue
// disposable and reconciliation possible.
type WorkItem struct {
	DeliveryID string          `json:"delivery_id"`
	MerchantID string          `json:"merchant_id"`
	Payload    json.RawMessage `json:"payload"`
	TargetURL  string          `json:"target_url"`
	// Attempt is the number of delivery attempts already made for this item.
	// A fresh submission carries 0.
	Attempt int `json:"attempt"`
}

// Encode serializes the work item for the wire
func (i WorkItem) Encode() ([]byte, error) {
	body, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work item: %w", err)
	}
	return body, nil
}

// DecodeWorkItem parses a work item from a queue message body
func DecodeWorkItem(body []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return WorkItem{}, fmt.Errorf("failed to decode work item: %w", err)
	}
	if item.DeliveryID == "" {
		return WorkItem{}, fmt.Errorf("work item has no delivery_id")
	}
	return item, nil
}
