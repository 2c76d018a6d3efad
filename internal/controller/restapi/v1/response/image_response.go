package response

type ImageMetadata struct {
	Name          string `json:"name"`
	SizeBytes     int64  `json:"size_bytes"`
	Extension     string `json:"extension"`
	LastUpdatedAt string `json:"last_updated_at"`
}

type DeleteResult struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

type Error struct {
	Error string `json:"error"`
}
