package model

// NotificationRecord is the journal row written after a delivery succeeds.
type NotificationRecord struct {
	Key           string `json:"key"`
	Kind          string `json:"kind"`
	BlockNumber   uint64 `json:"block_number"`
	TxHash        string `json:"tx_hash"`
	ItemID        string `json:"item_id,omitempty"`
	MarketAddress string `json:"market_address,omitempty"`
	MarketName    string `json:"market_name,omitempty"`
	ChatID        string `json:"chat_id"`
	SentAt        string `json:"sent_at"`
}
