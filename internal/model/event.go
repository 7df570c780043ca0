package model

// IngestAction is what the reconciler did with a post
type IngestAction string

const (
	ActionInsert IngestAction = "insert"
	ActionUpdate IngestAction = "update"
)

// IngestEvent is published once a committed batch inserted or updated a post
type IngestEvent struct {
	Action    IngestAction `json:"action"`
	Domain    Domain       `json:"domain"`
	Seq       int64        `json:"seq"`
	PostID    string       `json:"post_id,omitempty"`
	Community string       `json:"community"`
	Title     string       `json:"title"`
	Link      string       `json:"link"`
	RegDate   string       `json:"reg_date"`
	Views     int          `json:"views"`
	Recommend int          `json:"recommend"`
	RunID     string       `json:"run_id,omitempty"`
}
