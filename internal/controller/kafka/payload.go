package kafka

// ImageEventPayload is the lifecycle event body the outbox relay puts on
// the topic: enough to re-check both stores without another lookup chain.
type ImageEventPayload struct {
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
	SizeBytes  int64  `json:"size_bytes"`
	Extension  string `json:"extension"`
	Operation  string `json:"operation"`
}
