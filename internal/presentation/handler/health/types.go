package health

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Connected bool   `json:"connected"`
	Session   string `json:"session"`
}
