package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/hookrelay/hookrelay/internal/store"
)

// DecodeDeliveryCursor parses an opaque pagination cursor. An empty cursor
// means the first page.
func DecodeDeliveryCursor(cursorStr string) (*store.DeliveryCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &store.DeliveryCursor{
		CreatedAt:  time.Unix(0, createdAt),
		DeliveryID: parts[1],
	}, nil
}

// EncodeDeliveryCursor renders a cursor pointing just past the given row
func EncodeDeliveryCursor(cursor *store.DeliveryCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.DeliveryID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
